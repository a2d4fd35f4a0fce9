package middleware

import (
	"net/http"
	"runtime/debug"

	"carvalue-api/internal/logging"
	"carvalue-api/pkg/apierror"
	"carvalue-api/pkg/response"
)

// Recovery returns a middleware that turns panics into 500 responses.
func Recovery(logger logging.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					if err == http.ErrAbortHandler {
						panic(err)
					}
					logger.Error(r.Context(), "panic recovered", "panic", err, "stack", string(debug.Stack()))
					response.Error(w, apierror.InternalError("internal server error"))
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
