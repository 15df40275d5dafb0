package api

import (
	"log/slog"
	"net/http"

	"github.com/V4T54L/telemetry-sink/internal/adapter/api/handler"
	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/pkg/config"
)

// NewRouter creates and configures the main HTTP router for the telemetry sink.
func NewRouter(
	cfg *config.Config,
	logger *slog.Logger,
	sink handler.EnvelopeSink,
	m *metrics.SinkMetrics,
) http.Handler {
	mux := http.NewServeMux()

	telemetryHandler := handler.NewTelemetryHandler(sink, logger, cfg.MaxEnvelopeSize, m)

	// Routes
	mux.Handle("POST /v1/telemetry", telemetryHandler)

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return mux
}
