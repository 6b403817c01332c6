// Package logging configures structured JSON logging and carries a logger
// through request contexts.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"
)

// ParseLevel maps debug, info, warn or error to a slog level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

// New returns a JSON logger writing to w at the given level.
func New(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level}))
}

// Setup initializes the default slog logger with JSON output to stderr, so
// rendered output on stdout stays clean.
func Setup(level slog.Level) *slog.Logger {
	logger := New(os.Stderr, level)
	slog.SetDefault(logger)
	return logger
}

type contextKey string

const loggerKey contextKey = "logger"

// WithLogger returns a context with the given logger attached.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, logger)
}

// FromContext retrieves the logger from the context, falling back to slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// RenderFields holds the fields logged for one render.
type RenderFields struct {
	Source       string
	Mode         string
	Candidates   int
	Substituted  int
	Unmatched    int
	Malformed    int
	Failed       int
	Placeholders int
	RenderMs     int64
	Bytes        int64
	Err          error
}

// LogRender logs a completed render. Failed resolutions raise the level to
// warn; an aborted rewrite logs at error.
func LogRender(logger *slog.Logger, f RenderFields) {
	level := slog.LevelInfo
	if f.Err != nil {
		level = slog.LevelError
	} else if f.Failed > 0 {
		level = slog.LevelWarn
	}

	attrs := []any{
		"source", f.Source,
		"mode", f.Mode,
		"candidates", f.Candidates,
		"substituted", f.Substituted,
		"unmatched", f.Unmatched,
		"malformed", f.Malformed,
		"failed", f.Failed,
		"placeholders", f.Placeholders,
		"render_ms", f.RenderMs,
		"bytes", f.Bytes,
	}
	if f.Err != nil {
		attrs = append(attrs, "error", f.Err)
	}
	logger.Log(context.Background(), level, "render", attrs...)
}

// ByteCountingWriter wraps http.ResponseWriter to capture status code and bytes written.
type ByteCountingWriter struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int64
}

// WriteHeader captures the status code.
func (w *ByteCountingWriter) WriteHeader(code int) {
	w.StatusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Write captures bytes written.
func (w *ByteCountingWriter) Write(b []byte) (int, error) {
	if w.StatusCode == 0 {
		w.StatusCode = 200
	}
	n, err := w.ResponseWriter.Write(b)
	w.Bytes += int64(n)
	return n, err
}

// Middleware returns an HTTP middleware that attaches logger to each request
// context and logs the request with timing.
func Middleware(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &ByteCountingWriter{ResponseWriter: w}
		next.ServeHTTP(wrapped, r.WithContext(WithLogger(r.Context(), logger)))

		if wrapped.StatusCode == 0 {
			wrapped.StatusCode = 200
		}

		level := slog.LevelInfo
		if wrapped.StatusCode >= 500 {
			level = slog.LevelError
		} else if wrapped.StatusCode >= 400 {
			level = slog.LevelWarn
		}
		logger.Log(r.Context(), level, "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.StatusCode,
			"bytes", wrapped.Bytes,
			"total_ms", time.Since(start).Milliseconds(),
		)
	})
}
