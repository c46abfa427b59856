// Package logger configures the process-wide slog logger and carries
// per-sync attributes (trace ID, user, run) through context.Context.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

type ctxKey struct{}

// scope is the trace ID plus attributes attached to a context.
type scope struct {
	traceID string
	attrs   []any
}

// Init installs a JSON logger for service on stdout as the slog default.
func Init(service string, level slog.Level) *slog.Logger {
	l := New(os.Stdout, service, level)
	slog.SetDefault(l)
	return l
}

// New builds a JSON logger writing to w. Broker credentials are redacted.
func New(w io.Writer, service string, level slog.Level) *slog.Logger {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: redact,
	})
	return slog.New(h).With(slog.String("service", service))
}

var secretKeys = map[string]bool{
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"api_secret":    true,
	"password":      true,
	"totp_secret":   true,
}

func redact(groups []string, a slog.Attr) slog.Attr {
	if secretKeys[strings.ToLower(a.Key)] && a.Value.String() != "" {
		return slog.String(a.Key, "[redacted]")
	}
	return a
}

func scopeOf(ctx context.Context) scope {
	s, _ := ctx.Value(ctxKey{}).(scope)
	return s
}

// WithTraceID stores a trace ID in the context, keeping existing attributes.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	s := scopeOf(ctx)
	s.traceID = traceID
	return context.WithValue(ctx, ctxKey{}, s)
}

// With adds key/value attributes to every record logged through ctx.
func With(ctx context.Context, args ...any) context.Context {
	s := scopeOf(ctx)
	s.attrs = append(append([]any(nil), s.attrs...), args...)
	return context.WithValue(ctx, ctxKey{}, s)
}

// TraceID extracts the trace ID from context, or "".
func TraceID(ctx context.Context) string {
	return scopeOf(ctx).traceID
}

// FromContext returns the default logger with ctx's trace ID and attributes.
func FromContext(ctx context.Context) *slog.Logger {
	s := scopeOf(ctx)
	l := slog.Default()
	if s.traceID != "" {
		l = l.With(slog.String("trace_id", s.traceID))
	}
	if len(s.attrs) > 0 {
		l = l.With(s.attrs...)
	}
	return l
}

// GenerateTraceID creates a trace ID for one sync run of userID:
// "{userID}-{unixNano}".
func GenerateTraceID(userID string, ts time.Time) string {
	return fmt.Sprintf("%s-%d", userID, ts.UnixNano())
}

// ParseLevel maps LOG_LEVEL values to slog levels, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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
