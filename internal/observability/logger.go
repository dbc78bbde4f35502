// Package observability provides structured logging with redaction support,
// request ID propagation and OpenTelemetry tracing.
package observability

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LoggerConfig contains configuration for the logger.
type LoggerConfig struct {
	// Level is shared with the caller so the level can be changed at runtime.
	// A nil Level logs at INFO.
	Level      *slog.LevelVar
	Output     io.Writer
	AddSource  bool
	JSONFormat bool
}

// NewLogger creates a slog logger whose records pass through redactor before
// reaching the output. A nil redactor disables redaction.
func NewLogger(cfg LoggerConfig, redactor *Redactor) *slog.Logger {
	level := cfg.Level
	if level == nil {
		level = new(slog.LevelVar)
	}
	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSONFormat {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	if redactor != nil {
		handler = &RedactingHandler{inner: handler, redactor: redactor}
	}
	return slog.New(handler)
}

// ParseLevel maps debug, info, warn and error to slog levels.
// Unknown values map to INFO.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID returns a logger carrying the request ID from ctx, or logger
// itself when ctx has none.
func WithRequestID(ctx context.Context, logger *slog.Logger) *slog.Logger {
	requestID := RequestIDFromContext(ctx)
	if requestID == "" {
		return logger
	}
	return logger.With("request_id", requestID)
}

// RedactingHandler is a slog.Handler that masks credentials in messages and
// attribute values before delegating to the wrapped handler.
type RedactingHandler struct {
	inner    slog.Handler
	redactor *Redactor
}

// NewRedactingHandler wraps inner with redaction.
func NewRedactingHandler(inner slog.Handler, redactor *Redactor) *RedactingHandler {
	return &RedactingHandler{inner: inner, redactor: redactor}
}

// Enabled implements slog.Handler.
func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle implements slog.Handler.
func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	out := slog.NewRecord(r.Time, r.Level, h.redactor.Redact(r.Message), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		out.AddAttrs(h.redactAttr(a))
		return true
	})
	return h.inner.Handle(ctx, out)
}

// WithAttrs implements slog.Handler.
func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = h.redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted), redactor: h.redactor}
}

// WithGroup implements slog.Handler.
func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name), redactor: h.redactor}
}

func (h *RedactingHandler) redactAttr(a slog.Attr) slog.Attr {
	if h.redactor.IsSensitiveKey(a.Key) {
		return slog.String(a.Key, "[REDACTED]")
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, h.redactor.Redact(v.String()))
	case slog.KindGroup:
		group := v.Group()
		attrs := make([]any, len(group))
		for i, ga := range group {
			attrs[i] = h.redactAttr(ga)
		}
		return slog.Group(a.Key, attrs...)
	case slog.KindAny:
		switch x := v.Any().(type) {
		case error:
			return slog.String(a.Key, h.redactor.Redact(x.Error()))
		case map[string]any:
			return slog.Any(a.Key, h.redactor.RedactMap(x))
		}
	}
	return slog.Attr{Key: a.Key, Value: v}
}
