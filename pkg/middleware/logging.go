package middleware

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/unionco/idbridge/pkg/observability"
)

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Logging logs each request and records HTTP metrics. metrics may be nil.
func Logging(metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(recorder, r)

			duration := time.Since(start)
			path := routePattern(r)

			logger := observability.UpdateLoggerWithTraceContext(r.Context(), observability.FromContext(r.Context()))
			logger.WithFields(map[string]interface{}{
				"method":      r.Method,
				"path":        path,
				"status":      recorder.status,
				"duration_ms": duration.Milliseconds(),
			}).Info("Request completed")

			if metrics != nil {
				metrics.ObserveHTTPRequest(r.Method, path, recorder.status, duration)
			}
		})
	}
}

// routePattern returns the mux route template so metrics are not split per
// concrete URL.
func routePattern(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}
