package handler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/telemetry-sink/internal/adapter/metrics"
	"github.com/V4T54L/telemetry-sink/internal/domain"
)

// MockSink is a mock implementation of EnvelopeSink.
type MockSink struct {
	mu       sync.Mutex
	Messages []string
	Levels   []string
	LogFunc  func(message string) error
}

func (m *MockSink) Log(ctx context.Context, level string, message any, meta map[string]any) error {
	msg := string(message.([]byte))
	m.mu.Lock()
	m.Messages = append(m.Messages, msg)
	m.Levels = append(m.Levels, level)
	m.mu.Unlock()
	if m.LogFunc != nil {
		return m.LogFunc(msg)
	}
	return nil
}

func TestTelemetryHandler(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	parseErr := &domain.ParseError{Err: errors.New("invalid character")}

	tests := []struct {
		name           string
		method         string
		contentType    string
		body           string
		logFunc        func(message string) error
		maxSize        int64
		expectedStatus int
		expectedBody   string
		expectedCalls  int
	}{
		{
			name:           "Valid Single JSON",
			method:         http.MethodPost,
			contentType:    "application/json; charset=utf-8",
			body:           `{"events":[]}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"successful"}`,
			expectedCalls:  1,
		},
		{
			name:           "Valid NDJSON",
			method:         http.MethodPost,
			contentType:    "application/x-ndjson",
			body:           `{"mid":"1","events":[]}` + "\n\n" + `{"mid":"2","events":[]}` + "\n",
			expectedStatus: http.StatusOK,
			expectedBody:   `{"status":"successful"}`,
			expectedCalls:  2,
		},
		{
			name:           "Invalid Method",
			method:         http.MethodGet,
			contentType:    "application/json",
			body:           `{}`,
			expectedStatus: http.StatusMethodNotAllowed,
			expectedBody:   "Method Not Allowed\n",
		},
		{
			name:           "Unsupported Content-Type",
			method:         http.MethodPost,
			contentType:    "text/plain",
			body:           `hello`,
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Unsupported Media Type: text/plain\n",
		},
		{
			name:           "Parse Error",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"events":`,
			logFunc:        func(string) error { return parseErr },
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: parse envelope: invalid character\n",
			expectedCalls:  1,
		},
		{
			name:           "Malformed Envelope",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"id":"api.1"}`,
			logFunc:        func(string) error { return &domain.MalformedEnvelopeError{Reason: "no events", EventIndex: -1} },
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: malformed envelope: no events\n",
			expectedCalls:  1,
		},
		{
			name:        "Partial Write",
			method:      http.MethodPost,
			contentType: "application/json",
			body:        `{"events":[{"context":{}}]}`,
			logFunc: func(string) error {
				return &domain.PartialWriteError{Total: 1, Failures: []domain.RecordFailure{{Index: 0, Err: errors.New("db down")}}}
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal Server Error\n",
			expectedCalls:  1,
		},
		{
			name:        "NDJSON continues past a bad line",
			method:      http.MethodPost,
			contentType: "application/x-ndjson",
			body:        `{"mid":"1"}` + "\n" + `bad` + "\n" + `{"mid":"3"}`,
			logFunc: func(msg string) error {
				if msg == "bad" {
					return parseErr
				}
				return nil
			},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Bad Request: 1 of 3 envelopes failed, first: parse envelope: invalid character\n",
			expectedCalls:  3,
		},
		{
			name:        "NDJSON storage failure wins over bad line",
			method:      http.MethodPost,
			contentType: "application/x-ndjson",
			body:        `bad` + "\n" + `{"mid":"2"}`,
			logFunc: func(msg string) error {
				if msg == "bad" {
					return parseErr
				}
				return &domain.PartialWriteError{Total: 1, Failures: []domain.RecordFailure{{Err: errors.New("db down")}}}
			},
			expectedStatus: http.StatusInternalServerError,
			expectedBody:   "Internal Server Error\n",
			expectedCalls:  2,
		},
		{
			name:           "Payload Too Large",
			method:         http.MethodPost,
			contentType:    "application/json",
			body:           `{"events":[],"padding":"this payload is definitely too large for the test limit"}`,
			maxSize:        50,
			expectedStatus: http.StatusRequestEntityTooLarge,
			expectedBody:   "Payload Too Large\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sink := &MockSink{LogFunc: tt.logFunc}
			maxSize := tt.maxSize
			if maxSize == 0 {
				maxSize = 1024
			}
			handler := NewTelemetryHandler(sink, logger, maxSize, metrics.NewSinkMetrics(prometheus.NewRegistry()))

			req := httptest.NewRequest(tt.method, "/v1/telemetry", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", tt.contentType)
			rr := httptest.NewRecorder()

			handler.ServeHTTP(rr, req)

			if status := rr.Code; status != tt.expectedStatus {
				t.Errorf("handler returned wrong status code: got %v want %v", status, tt.expectedStatus)
			}
			if body := rr.Body.String(); body != tt.expectedBody {
				t.Errorf("handler returned unexpected body: got %q want %q", body, tt.expectedBody)
			}
			if len(sink.Messages) != tt.expectedCalls {
				t.Errorf("expected %d sink calls, got %d", tt.expectedCalls, len(sink.Messages))
			}
		})
	}
}

func TestTelemetryHandler_LevelHeader(t *testing.T) {
	sink := &MockSink{}
	handler := NewTelemetryHandler(sink, slog.New(slog.NewTextHandler(io.Discard, nil)), 1024, nil)

	req := httptest.NewRequest(http.MethodPost, "/v1/telemetry", strings.NewReader(`{"events":[]}`))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(LevelHeader, "warn")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if len(sink.Levels) != 1 || sink.Levels[0] != "warn" {
		t.Errorf("expected level warn, got %v", sink.Levels)
	}
}
