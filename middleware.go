package scimgateway

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// RequestLogger is the logging sink LoggingMiddleware writes to. The
// request path into *observability.Logger and the batched writer in
// batch.go both satisfy it, so either can sit behind the middleware.
type RequestLogger interface {
	Log(ctx context.Context, level slog.Level, category, endpoint, msg string, attrs map[string]any)
}

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.written {
		rw.statusCode = code
		rw.written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	if !rw.written {
		rw.WriteHeader(http.StatusOK)
	}
	return rw.ResponseWriter.Write(b)
}

// LoggingMiddleware logs HTTP requests with method, path, status,
// duration, and client IP through the structured observability
// logger, so every record picks up the request's correlation id and
// passes through the cascade filter and secret redaction.
func LoggingMiddleware(logger RequestLogger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{
				ResponseWriter: w,
				statusCode:     http.StatusOK,
				written:        false,
			}

			next.ServeHTTP(wrapped, r)

			duration := time.Since(start)

			level := levelForStatus(wrapped.statusCode)

			logger.Log(r.Context(), level, "http", endpointFromPath(r.URL.Path), "HTTP request", map[string]any{
				"method":      r.Method,
				"path":        r.URL.Path,
				"query":       r.URL.RawQuery,
				"status":      wrapped.statusCode,
				"duration_ms": duration.Milliseconds(),
				"remote_addr": r.RemoteAddr,
				"user_agent":  r.Header.Get("User-Agent"),
			})
		})
	}
}

func levelForStatus(status int) slog.Level {
	switch {
	case status >= 500:
		return slog.LevelError
	case status >= 400:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

// endpointFromPath extracts the leading path segment as the endpoint
// name for log cascade filtering, when the request targets the SCIM
// plane (/{endpoint}/...). Admin-plane requests have no endpoint.
func endpointFromPath(path string) string {
	trimmed := path
	for len(trimmed) > 0 && trimmed[0] == '/' {
		trimmed = trimmed[1:]
	}
	for i := 0; i < len(trimmed); i++ {
		if trimmed[i] == '/' {
			trimmed = trimmed[:i]
			break
		}
	}
	if trimmed == "admin" {
		return ""
	}
	return trimmed
}
