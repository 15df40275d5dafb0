package slogsink

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	level   string
	message any
	meta    map[string]any
}

type recordingSink struct {
	mu    sync.Mutex
	calls []call
	err   error
}

func (s *recordingSink) Log(_ context.Context, level string, message any, meta map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, call{level: level, message: message, meta: meta})
	return s.err
}

func TestHandler(t *testing.T) {
	t.Run("message text is the envelope", func(t *testing.T) {
		sink := &recordingSink{}
		logger := slog.New(NewHandler(sink, nil))

		logger.Info(`{"events":[]}`, "source", "portal")

		require.Len(t, sink.calls, 1)
		assert.Equal(t, "info", sink.calls[0].level)
		assert.Equal(t, `{"events":[]}`, sink.calls[0].message)
		assert.Equal(t, "portal", sink.calls[0].meta["source"])
	})

	t.Run("structured envelope attribute", func(t *testing.T) {
		sink := &recordingSink{}
		logger := slog.New(NewHandler(sink, nil))
		env := map[string]any{"events": []any{}}

		logger.Warn("telemetry", EnvelopeKey, env)

		require.Len(t, sink.calls, 1)
		assert.Equal(t, "warn", sink.calls[0].level)
		assert.Equal(t, env, sink.calls[0].message)
		assert.NotContains(t, sink.calls[0].meta, EnvelopeKey)
	})

	t.Run("envelope attribute inside a group", func(t *testing.T) {
		sink := &recordingSink{}
		logger := slog.New(NewHandler(sink, nil)).WithGroup("telemetry")
		env := map[string]any{"events": []any{}}

		logger.Info("ignored text", EnvelopeKey, env, "source", "portal")

		require.Len(t, sink.calls, 1)
		assert.Equal(t, env, sink.calls[0].message)
		assert.Equal(t, "portal", sink.calls[0].meta["telemetry.source"])
		assert.NotContains(t, sink.calls[0].meta, "telemetry."+EnvelopeKey)
	})

	t.Run("envelope bound with With", func(t *testing.T) {
		sink := &recordingSink{}
		env := map[string]any{"events": []any{}}
		logger := slog.New(NewHandler(sink, nil)).WithGroup("g").With(EnvelopeKey, env)

		logger.Info("ignored text")

		require.Len(t, sink.calls, 1)
		assert.Equal(t, env, sink.calls[0].message)
		assert.Empty(t, sink.calls[0].meta)
	})

	t.Run("level filter", func(t *testing.T) {
		sink := &recordingSink{}
		logger := slog.New(NewHandler(sink, &HandlerOptions{Level: slog.LevelWarn}))

		logger.Info("ignored")
		logger.Error("kept")

		require.Len(t, sink.calls, 1)
		assert.Equal(t, "kept", sink.calls[0].message)
	})

	t.Run("attrs and groups become meta keys", func(t *testing.T) {
		sink := &recordingSink{}
		logger := slog.New(NewHandler(sink, nil)).With("host", "a").WithGroup("req").With("id", 7)

		logger.Info("{}", "path", "/v1")

		meta := sink.calls[0].meta
		assert.Equal(t, "a", meta["host"])
		assert.Equal(t, int64(7), meta["req.id"])
		assert.Equal(t, "/v1", meta["req.path"])
	})

	t.Run("dispatch errors reach OnError", func(t *testing.T) {
		sinkErr := errors.New("write failed")
		var got error
		h := NewHandler(&recordingSink{err: sinkErr}, &HandlerOptions{OnError: func(err error) { got = err }})

		slog.New(h).Info("{}")

		assert.ErrorIs(t, got, sinkErr)
	})
}
