package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/V4T54L/telemetry-sink/internal/adapter/slogsink"
)

const lifecyclePID = "telemetry-sink"

// lifecycleEnvelope describes a START or END of this process as a one-event
// telemetry envelope.
func lifecycleEnvelope(eid, channel string, now time.Time) map[string]any {
	ts := now.UnixMilli()
	return map[string]any{
		"id":  "api.sink.lifecycle",
		"ver": "3.0",
		"ets": ts,
		"mid": uuid.NewString(),
		"events": []any{
			map[string]any{
				"eid":   eid,
				"ets":   ts,
				"edata": map[string]any{"type": "lifecycle"},
				"context": map[string]any{
					"channel": channel,
					"pdata":   map[string]any{"pid": lifecyclePID},
				},
			},
		},
	}
}

// newLifecycleLogger returns a logger whose records are dispatched to sink.
// Dispatch failures are reported on fallback.
func newLifecycleLogger(sink slogsink.Sink, fallback *slog.Logger) *slog.Logger {
	return slog.New(slogsink.NewHandler(sink, &slogsink.HandlerOptions{
		OnError: func(err error) {
			fallback.Warn("failed to record lifecycle event", "error", err)
		},
	}))
}

func emitLifecycle(ctx context.Context, logger *slog.Logger, eid, channel string) {
	logger.InfoContext(ctx, "sink lifecycle", slogsink.EnvelopeKey, lifecycleEnvelope(eid, channel, time.Now()))
}
