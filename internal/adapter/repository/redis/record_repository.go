package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// RecordRepository implements domain.RecordRepository on a Redis Stream:
// every record becomes one stream entry.
type RecordRepository struct {
	client *redis.Client
	stream string
	maxLen int64
	logger *slog.Logger
}

// NewRecordRepository creates a Redis-backed RecordRepository. A positive
// maxLen caps the stream length approximately on every write.
func NewRecordRepository(client *redis.Client, stream string, maxLen int64, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{
		client: client,
		stream: stream,
		maxLen: maxLen,
		logger: logger.With("component", "redis_repository", "stream", stream),
	}
}

// Ping checks that Redis is reachable.
func (r *RecordRepository) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

// InsertRecord appends the record to the stream. The indexed fields are
// stored alongside the JSON payload so consumers can filter without decoding.
func (r *RecordRepository) InsertRecord(ctx context.Context, record domain.StorageRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal storage record: %w", err)
	}

	values := map[string]interface{}{
		"payload": payload,
		"api_id":  record.APIID,
		"ver":     record.Ver,
		"mid":     record.MID,
	}
	if len(record.ETS) > 0 {
		values["ets"] = string(record.ETS)
	}
	if len(record.SyncTS) > 0 {
		values["syncts"] = string(record.SyncTS)
	}

	args := &redis.XAddArgs{
		Stream: r.stream,
		Values: values,
	}
	if r.maxLen > 0 {
		args.MaxLen = r.maxLen
		args.Approx = true
	}

	if err := r.client.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("failed to XADD to redis stream: %w", err)
	}
	return nil
}
