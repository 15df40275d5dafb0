// Package slogsink lets a *slog.Logger act as the host logging layer of the
// telemetry sink: every enabled record is handed to the sink as one message.
package slogsink

import (
	"context"
	"log/slog"
	"strings"
)

// EnvelopeKey is the attribute that carries a structured envelope. When it
// is absent the record message is treated as a serialized envelope.
const EnvelopeKey = "envelope"

// Sink is the host-facing contract of the telemetry sink.
type Sink interface {
	Log(ctx context.Context, level string, message any, meta map[string]any) error
}

// HandlerOptions configures a Handler.
type HandlerOptions struct {
	// Level is the minimum level passed to the sink. Defaults to info.
	Level slog.Leveler
	// OnError receives dispatch failures, which slog itself discards.
	OnError func(error)
}

// Handler is a slog.Handler that dispatches records to a Sink.
type Handler struct {
	sink     Sink
	opts     HandlerOptions
	attrs    []slog.Attr // keys already qualified by their groups
	groups   []string
	envelope any // set by WithAttrs(EnvelopeKey)
}

// NewHandler creates a Handler. opts may be nil.
func NewHandler(sink Sink, opts *HandlerOptions) *Handler {
	h := &Handler{sink: sink}
	if opts != nil {
		h.opts = *opts
	}
	if h.opts.Level == nil {
		h.opts.Level = slog.LevelInfo
	}
	return h
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

// Handle dispatches the record synchronously and returns the sink's error.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	var message any = r.Message
	meta := make(map[string]any, len(h.attrs)+r.NumAttrs())

	for _, a := range h.attrs {
		meta[a.Key] = a.Value.Resolve().Any()
	}
	if h.envelope != nil {
		message = h.envelope
	}
	r.Attrs(func(a slog.Attr) bool {
		// The envelope is recognized under any group.
		if a.Key == EnvelopeKey {
			message = a.Value.Any()
			return true
		}
		a = h.qualify(a)
		meta[a.Key] = a.Value.Resolve().Any()
		return true
	})

	err := h.sink.Log(ctx, strings.ToLower(r.Level.String()), message, meta)
	if err != nil && h.opts.OnError != nil {
		h.opts.OnError(err)
	}
	return err
}

// qualify prefixes the attribute key with the open groups.
func (h *Handler) qualify(a slog.Attr) slog.Attr {
	if len(h.groups) > 0 {
		a.Key = strings.Join(h.groups, ".") + "." + a.Key
	}
	return a
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if a.Key == EnvelopeKey {
			clone.envelope = a.Value.Any()
			continue
		}
		clone.attrs = append(clone.attrs, h.qualify(a))
	}
	return &clone
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.groups = append(append([]string(nil), h.groups...), name)
	return &clone
}
