package middleware

import (
	"net/http"
	"time"

	"carvalue-api/internal/logging"
)

// Logging returns a middleware that logs each request once it completes.
func Logging(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			args := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"remote", r.RemoteAddr,
				"status", wrapped.statusCode,
				"duration", time.Since(start),
			}
			switch {
			case wrapped.statusCode >= 500:
				logger.Error(r.Context(), "request failed", args...)
			case wrapped.statusCode >= 400:
				logger.Warn(r.Context(), "request rejected", args...)
			default:
				logger.Info(r.Context(), "request served", args...)
			}
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
