package usecase

import (
	"context"
	"log/slog"
	"sync"

	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// Sink is the entry point the host logging layer calls once per message.
// It persists the envelope and, when configured, forwards an anonymized copy
// without waiting for the forward to finish.
type Sink struct {
	dispatcher *DispatchBatchUseCase
	forwarder  *ForwardBatchUseCase
	logger     *slog.Logger

	inflight sync.WaitGroup
}

// NewSink creates a new Sink. forwarder may be nil.
func NewSink(dispatcher *DispatchBatchUseCase, forwarder *ForwardBatchUseCase, logger *slog.Logger) *Sink {
	return &Sink{
		dispatcher: dispatcher,
		forwarder:  forwarder,
		logger:     logger.With("component", "sink"),
	}
}

// Log handles one message. The returned error is the persistence outcome
// only; forwarding results are visible in logs and metrics.
func (s *Sink) Log(ctx context.Context, level string, message any, meta map[string]any) error {
	env, err := domain.ParseEnvelope(message)
	if err != nil {
		s.logger.Error("failed to parse message", "error", err, "level", level)
		s.dispatcher.countEnvelope(rejectStatus(err))
		return err
	}
	if len(meta) > 0 {
		s.logger.Debug("received message", "level", level, "meta", meta)
	}

	if s.forwarder != nil && s.forwarder.Enabled() {
		s.inflight.Add(1)
		// Forwarding outlives the caller's request.
		fctx := context.WithoutCancel(ctx)
		go func() {
			defer s.inflight.Done()
			_ = s.forwarder.Forward(fctx, env)
		}()
	}

	_, err = s.dispatcher.DispatchEnvelope(ctx, env)
	return err
}

// Wait blocks until every forward started by Log has finished.
func (s *Sink) Wait() {
	s.inflight.Wait()
}
