package middleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	apierrors "github.com/bithra/platform/internal/api/errors"
	"github.com/go-chi/chi/v5/middleware"
)

// Recovery returns a middleware that recovers from panics and logs the error.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					requestID := middleware.GetReqID(r.Context())
					logger.Error("panic recovered",
						"error", rec,
						"error_code", apierrors.CodeInternalError,
						"stack_trace", string(debug.Stack()),
						"request_id", requestID,
						"user_id", GetUserID(r.Context()),
						"method", r.Method,
						"path", r.URL.Path,
					)

					apierrors.WriteErrorWithRequestID(w, apierrors.NewInternalError("An unexpected error occurred"), requestID)
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
