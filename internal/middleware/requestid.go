package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"carvalue-api/internal/logging"
)

const requestIDHeader = "X-Request-ID"

// RequestID is a middleware that adds a unique request ID to each request.
// A caller supplied X-Request-ID is kept when it is a UUID in canonical form.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(requestIDHeader)
		if !validRequestID(requestID) {
			requestID = uuid.NewString()
		}

		w.Header().Set(requestIDHeader, requestID)

		ctx := logging.WithRequestID(r.Context(), requestID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID retrieves the request ID from context.
func GetRequestID(ctx context.Context) string {
	return logging.RequestID(ctx)
}

// validRequestID accepts only the 36 character hyphenated UUID form.
func validRequestID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}
