package logging

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"
)

type Logger struct {
	*slog.Logger
}

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// ContextKey for correlation IDs
type contextKey string

const correlationIDKey contextKey = "correlation_id"

// CorrelationHeader carries an upstream correlation ID into the request.
const CorrelationHeader = "X-Correlation-ID"

func NewLogger(level LogLevel) *Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo writes JSON records to w; tests pass io.Discard or a buffer.
func NewLoggerTo(w io.Writer, level LogLevel) *Logger {
	var slogLevel slog.Level
	switch level {
	case LevelDebug:
		slogLevel = slog.LevelDebug
	case LevelInfo:
		slogLevel = slog.LevelInfo
	case LevelWarn:
		slogLevel = slog.LevelWarn
	case LevelError:
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{
		Level: slogLevel,
	}

	handler := slog.NewJSONHandler(w, opts)
	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a logger that discards everything.
func Nop() *Logger {
	return NewLoggerTo(io.Discard, LevelError)
}

// WithCorrelationID adds a correlation ID to the context
func WithCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) == "" {
		correlationID := uuid.New().String()
		return context.WithValue(ctx, correlationIDKey, correlationID)
	}
	return ctx
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

// Middleware tags every request with a correlation ID, reusing the one sent
// in X-Correlation-ID when present, and echoes it back on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(CorrelationHeader); id != "" {
			if _, err := uuid.Parse(id); err == nil {
				ctx = context.WithValue(ctx, correlationIDKey, id)
			}
		}
		ctx = WithCorrelationID(ctx)
		w.Header().Set(CorrelationHeader, GetCorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (l *Logger) withCorrelation(ctx context.Context, args []any) []any {
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		args = append(args, "correlation_id", correlationID)
	}
	return args
}

// Debug logs debug level messages with correlation ID
func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Logger.Debug(msg, l.withCorrelation(ctx, args)...)
}

// Info logs info level messages with correlation ID
func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Logger.Info(msg, l.withCorrelation(ctx, args)...)
}

// Warn logs warn level messages with correlation ID
func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Logger.Warn(msg, l.withCorrelation(ctx, args)...)
}

// Error logs error level messages with correlation ID
func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Logger.Error(msg, l.withCorrelation(ctx, args)...)
}

// LogRedirectOperation logs a change to the redirect table. The destination
// is left out; it may carry tokens in its query string.
func (l *Logger) LogRedirectOperation(ctx context.Context, operation, code string, success bool) {
	l.Logger.Info("redirect operation",
		l.withCorrelation(ctx, []any{
			"operation", operation,
			"code", code,
			"success", success,
		})...,
	)
}

// LogScan logs one resolved visit. Only the presence of geodata is logged,
// never the client address.
func (l *Logger) LogScan(ctx context.Context, code string, geolocated bool) {
	l.Logger.Info("scan recorded",
		l.withCorrelation(ctx, []any{
			"code", code,
			"geolocated", geolocated,
		})...,
	)
}

// LogAuthEvent logs authentication events without sensitive data
func (l *Logger) LogAuthEvent(ctx context.Context, event string, userID string, success bool) {
	l.Logger.Info("auth event",
		l.withCorrelation(ctx, []any{
			"event", event,
			"user_hash", hashSensitiveData(userID),
			"success", success,
		})...,
	)
}

// Simple hash function for sensitive data logging
func hashSensitiveData(data string) string {
	if len(data) < 8 {
		return "***"
	}
	// Show first 3 and last 3 chars with stars in middle
	return data[:3] + "***" + data[len(data)-3:]
}
