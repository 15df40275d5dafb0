package handler

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"

	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// LevelHeader optionally carries the log level of the submitted batch.
const LevelHeader = "X-Log-Level"

// EnvelopeSink is the part of usecase.Sink the handler depends on.
type EnvelopeSink interface {
	Log(ctx context.Context, level string, message any, meta map[string]any) error
}

// TelemetryHandler handles HTTP requests carrying telemetry envelopes.
type TelemetryHandler struct {
	sink            EnvelopeSink
	logger          *slog.Logger
	maxEnvelopeSize int64
	metrics         *metrics.SinkMetrics
}

// NewTelemetryHandler creates a new TelemetryHandler. m may be nil.
func NewTelemetryHandler(sink EnvelopeSink, logger *slog.Logger, maxEnvelopeSize int64, m *metrics.SinkMetrics) *TelemetryHandler {
	return &TelemetryHandler{
		sink:            sink,
		logger:          logger,
		maxEnvelopeSize: maxEnvelopeSize,
		metrics:         m,
	}
}

// ServeHTTP dispatches one envelope (application/json) or one envelope per
// line (application/x-ndjson) and replies once every record is persisted.
func (h *TelemetryHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	// Enforce max body size
	r.Body = http.MaxBytesReader(w, r.Body, h.maxEnvelopeSize)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			http.Error(w, "Payload Too Large", http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "Bad Request: failed to read body", http.StatusBadRequest)
		return
	}
	if h.metrics != nil {
		h.metrics.BytesTotal.Add(float64(len(body)))
	}

	level := r.Header.Get(LevelHeader)
	if level == "" {
		level = "info"
	}
	meta := map[string]any{"remote_addr": r.RemoteAddr}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch mediaType {
	case "application/json":
		if err := h.sink.Log(r.Context(), level, body, meta); err != nil {
			h.writeError(w, err)
			return
		}
	case "application/x-ndjson":
		if err := h.handleNDJSON(r.Context(), level, body, meta); err != nil {
			h.writeError(w, err)
			return
		}
	default:
		http.Error(w, "Unsupported Media Type: "+mediaType, http.StatusUnsupportedMediaType)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"successful"}`))
}

// ndjsonError summarizes the failed lines of an NDJSON request. status is
// the most severe status among them.
type ndjsonError struct {
	failed, total int
	status        int
	first         error
}

func (e *ndjsonError) Error() string {
	return fmt.Sprintf("%d of %d envelopes failed, first: %v", e.failed, e.total, e.first)
}

func (h *TelemetryHandler) handleNDJSON(ctx context.Context, level string, body []byte, meta map[string]any) error {
	scanner := bufio.NewScanner(bytes.NewReader(body))
	scanner.Buffer(make([]byte, 0, 64*1024), int(h.maxEnvelopeSize))

	var summary ndjsonError
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		summary.total++

		// The scanner reuses its buffer; the sink may hold on to the message.
		msg := append([]byte(nil), line...)
		if err := h.sink.Log(ctx, level, msg, meta); err != nil {
			// Keep going: each line is an independent envelope.
			h.logger.Warn("failed to dispatch ndjson line", "error", err, "line", summary.total)
			summary.failed++
			if summary.first == nil {
				summary.first = err
			}
			if s := statusFor(err); s > summary.status {
				summary.status = s
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return &domain.ParseError{Err: err}
	}
	if summary.failed > 0 {
		return &summary
	}
	return nil
}

func (h *TelemetryHandler) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	var nd *ndjsonError
	if errors.As(err, &nd) {
		status = nd.status
	}

	if status >= http.StatusInternalServerError {
		h.logger.Error("failed to persist telemetry", "error", err)
		http.Error(w, "Internal Server Error", status)
		return
	}
	http.Error(w, "Bad Request: "+strings.TrimSpace(err.Error()), status)
}

func statusFor(err error) int {
	var (
		parseErr     *domain.ParseError
		malformedErr *domain.MalformedEnvelopeError
	)
	switch {
	case errors.As(err, &parseErr), errors.As(err, &malformedErr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
