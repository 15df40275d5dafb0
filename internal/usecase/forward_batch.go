package usecase

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/adapter/pii"
	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// ForwardBatchUseCase sends an anonymized copy of an envelope to the
// external aggregation endpoint. Failures are logged and never retried.
type ForwardBatchUseCase struct {
	client     domain.ForwardClient
	anonymizer *pii.Anonymizer
	url        string
	enabled    bool
	logger     *slog.Logger
	metrics    *metrics.SinkMetrics
}

// NewForwardBatchUseCase creates a new ForwardBatchUseCase. Forwarding is
// enabled only when enabled is true and url is non-empty. m may be nil.
func NewForwardBatchUseCase(client domain.ForwardClient, anonymizer *pii.Anonymizer, url string, enabled bool, logger *slog.Logger, m *metrics.SinkMetrics) *ForwardBatchUseCase {
	return &ForwardBatchUseCase{
		client:     client,
		anonymizer: anonymizer,
		url:        url,
		enabled:    enabled && url != "" && client != nil,
		logger:     logger.With("component", "forwarder"),
		metrics:    m,
	}
}

// Enabled reports whether Forward sends anything.
func (uc *ForwardBatchUseCase) Enabled() bool {
	return uc.enabled
}

// Forward anonymizes env and posts it. It is a no-op returning nil when
// forwarding is disabled. The returned *domain.ForwardError is informational;
// the outcome has already been logged.
func (uc *ForwardBatchUseCase) Forward(ctx context.Context, env *domain.Envelope) error {
	if !uc.enabled {
		return nil
	}

	payload := uc.anonymizer.Anonymize(env)
	status, err := uc.client.PostJSON(ctx, uc.url, payload)
	if err != nil {
		uc.logger.Error("failed to forward anonymized batch", "error", err, "mid", env.MID)
		uc.count("error")
		return &domain.ForwardError{Err: err}
	}

	if status != http.StatusOK && status != http.StatusCreated {
		uc.logger.Warn("forwarding endpoint rejected anonymized batch", "status", status, "mid", env.MID)
		uc.count("rejected")
		return &domain.ForwardError{StatusCode: status}
	}

	uc.logger.Info("anonymized batch forwarded", "status", status, "mid", env.MID)
	uc.count("sent")
	return nil
}

func (uc *ForwardBatchUseCase) count(status string) {
	if uc.metrics != nil {
		uc.metrics.ForwardsTotal.WithLabelValues(status).Inc()
	}
}
