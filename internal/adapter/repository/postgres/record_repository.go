package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// indexedColumns are indexed at startup for the common query paths.
var indexedColumns = []string{"api_id", "ver", "ets", "syncts"}

// RecordRepository implements domain.RecordRepository on a PostgreSQL table,
// one row per storage record.
type RecordRepository struct {
	db     *sql.DB
	table  string
	logger *slog.Logger
}

// NewRecordRepository creates a repository writing to the given table.
func NewRecordRepository(db *sql.DB, table string, logger *slog.Logger) *RecordRepository {
	return &RecordRepository{
		db:     db,
		table:  table,
		logger: logger.With("component", "postgres_repository", "table", table),
	}
}

// EnsureSchema creates the table and its indexes if they do not exist.
func (r *RecordRepository) EnsureSchema(ctx context.Context) error {
	table := pq.QuoteIdentifier(r.table)
	create := `CREATE TABLE IF NOT EXISTS ` + table + ` (
		id          UUID PRIMARY KEY,
		api_id      TEXT,
		ver         TEXT,
		params      JSONB,
		ets         JSONB,
		events      JSONB NOT NULL,
		channel     TEXT,
		pid         TEXT,
		mid         TEXT,
		syncts      JSONB,
		inserted_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`
	if _, err := r.db.ExecContext(ctx, create); err != nil {
		return fmt.Errorf("failed to create table %s: %w", r.table, err)
	}

	for _, col := range indexedColumns {
		index := pq.QuoteIdentifier(fmt.Sprintf("%s_%s_idx", r.table, col))
		stmt := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s (%s)`, index, table, pq.QuoteIdentifier(col))
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create index on %s: %w", col, err)
		}
	}

	r.logger.Info("table and indexes ready")
	return nil
}

// InsertRecord writes one record as a new row.
func (r *RecordRepository) InsertRecord(ctx context.Context, record domain.StorageRecord) error {
	events, err := json.Marshal(record.Events)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	query := `INSERT INTO ` + pq.QuoteIdentifier(r.table) + `
		(id, api_id, ver, params, ets, events, channel, pid, mid, syncts)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err = r.db.ExecContext(ctx, query,
		uuid.NewString(),
		nullString(record.APIID),
		nullString(record.Ver),
		nullJSON(record.Params),
		nullJSON(record.ETS),
		string(events),
		nullText(record.Channel),
		nullText(record.PID),
		nullString(record.MID),
		nullJSON(record.SyncTS),
	)
	if err != nil {
		return fmt.Errorf("failed to insert record: %w", err)
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// nullText stores a JSON string unquoted and any other JSON value as its
// encoded text. Absent and null values become NULL.
func nullText(raw json.RawMessage) sql.NullString {
	if len(raw) == 0 || string(raw) == "null" {
		return sql.NullString{}
	}
	if s, ok := domain.StringValue(raw); ok {
		return sql.NullString{String: s, Valid: true}
	}
	return sql.NullString{String: string(raw), Valid: true}
}

// nullJSON passes JSON as text; lib/pq would send []byte as bytea.
func nullJSON(raw json.RawMessage) sql.NullString {
	return sql.NullString{String: string(raw), Valid: len(raw) > 0}
}
