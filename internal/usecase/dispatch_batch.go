package usecase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// DispatchBatchUseCase splits an envelope into storage records and persists
// them concurrently.
type DispatchBatchUseCase struct {
	repo    domain.RecordRepository
	logger  *slog.Logger
	metrics *metrics.SinkMetrics
}

// NewDispatchBatchUseCase creates a new DispatchBatchUseCase. m may be nil.
func NewDispatchBatchUseCase(repo domain.RecordRepository, logger *slog.Logger, m *metrics.SinkMetrics) *DispatchBatchUseCase {
	return &DispatchBatchUseCase{
		repo:    repo,
		logger:  logger.With("component", "dispatcher"),
		metrics: m,
	}
}

// Dispatch parses message and persists one record per event. It returns the
// number of records written. A *domain.ParseError or
// *domain.MalformedEnvelopeError means nothing was written; a
// *domain.PartialWriteError means some records may have been.
func (uc *DispatchBatchUseCase) Dispatch(ctx context.Context, message any) (int, error) {
	env, err := domain.ParseEnvelope(message)
	if err != nil {
		uc.logger.Error("failed to parse message", "error", err)
		uc.countEnvelope(rejectStatus(err))
		return 0, err
	}
	return uc.DispatchEnvelope(ctx, env)
}

// rejectStatus labels an envelope that was refused before any insert.
func rejectStatus(err error) string {
	var malformed *domain.MalformedEnvelopeError
	if errors.As(err, &malformed) {
		return "error_malformed"
	}
	return "error_parse"
}

// DispatchEnvelope persists one record per event of an already parsed envelope.
func (uc *DispatchBatchUseCase) DispatchEnvelope(ctx context.Context, env *domain.Envelope) (int, error) {
	start := time.Now()
	log := uc.logger.With("batch_id", uuid.NewString(), "mid", env.MID)

	events, err := env.Validate()
	if err != nil {
		log.Error("rejected malformed envelope", "error", err)
		uc.countEnvelope("error_malformed")
		return 0, err
	}

	records := make([]domain.StorageRecord, len(events))
	for i, ev := range events {
		records[i] = ShapeRecord(env, ev)
	}

	// Launch every insert before waiting on any of them.
	errs := make([]error, len(records))
	var wg sync.WaitGroup
	wg.Add(len(records))
	for i := range records {
		go func(i int) {
			defer wg.Done()
			errs[i] = uc.repo.InsertRecord(ctx, records[i])
		}(i)
	}
	wg.Wait()

	var failures []domain.RecordFailure
	for i, err := range errs {
		if err != nil {
			failures = append(failures, domain.RecordFailure{Index: i, Err: err})
		}
	}
	persisted := len(records) - len(failures)
	uc.countRecords(persisted, len(failures))
	if uc.metrics != nil {
		uc.metrics.DispatchDuration.Observe(time.Since(start).Seconds())
	}

	if len(failures) > 0 {
		pwErr := &domain.PartialWriteError{Total: len(records), Failures: failures}
		log.Error("unable to persist batch", "error", errors.Join(pwErr.Unwrap()...), "failed", len(failures), "persisted", persisted)
		uc.countEnvelope("error_write")
		return persisted, pwErr
	}

	log.Info("batch persisted", "count", persisted)
	uc.countEnvelope("persisted")
	return persisted, nil
}

func (uc *DispatchBatchUseCase) countEnvelope(status string) {
	if uc.metrics != nil {
		uc.metrics.EnvelopesTotal.WithLabelValues(status).Inc()
	}
}

func (uc *DispatchBatchUseCase) countRecords(inserted, failed int) {
	if uc.metrics == nil {
		return
	}
	uc.metrics.RecordsTotal.WithLabelValues("inserted").Add(float64(inserted))
	uc.metrics.RecordsTotal.WithLabelValues("failed").Add(float64(failed))
}
