package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/sqlagent/sqlagent/internal/config"
)

type ctxKey string

const (
	traceIDKey   ctxKey = "trace_id"
	sessionIDKey ctxKey = "session_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	opts := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// OrDiscard lets components accept a nil logger.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithSessionID(ctx context.Context, sessionID string) context.Context {
	return context.WithValue(ctx, sessionIDKey, sessionID)
}

func SessionIDFromContext(ctx context.Context) string {
	value, _ := ctx.Value(sessionIDKey).(string)
	return value
}

// LogAttrs returns the request-scoped attributes carried by ctx.
func LogAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 2)
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if sessionID := SessionIDFromContext(ctx); sessionID != "" {
		attrs = append(attrs, slog.String("session_id", sessionID))
	}
	return attrs
}
