package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/unionco/idbridge/pkg/observability"
)

const requestIDHeader = "X-Request-ID"

// RequestID assigns each request an ID (honoring an inbound X-Request-ID)
// and binds a request-scoped logger into the context.
func RequestID(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get(requestIDHeader)
			if id == "" {
				id = uuid.New().String()
			}

			w.Header().Set(requestIDHeader, id)

			ctx := observability.WithRequestID(r.Context(), id)
			ctx = observability.WithLogger(ctx, logger)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
