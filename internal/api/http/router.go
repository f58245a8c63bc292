// internal/api/http/router.go
package http

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
)

// Routes lists the paths served by NewRouter, as reported by "/".
var Routes = []string{
	"/tasks/start",
	"/tasks/listnames",
	"/tasks/history",
	"/target",
	"/locations/get",
	"/locations/listnames",
	"/maps/add",
	"/maps/get",
	"/maps/listnames",
	"/workers",
	"/metrics",
}

// NewRouter mounts the handlers, the metrics endpoint and a catch-all that
// lists the routes.
func NewRouter(dispatch *DispatchHandler, locations *LocationHandler, workers *WorkerHandler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	dispatch.RegisterRoutes(mux)
	locations.RegisterRoutes(mux)
	workers.RegisterRoutes(mux)
	mux.Handle("/", instrument(otel.Tracer("tasks-pizza-api"), "/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, Routes)
	}))
	return mux
}

// CorsMiddleware wraps an http.Handler with CORS headers for local development.
func CorsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization")

		// Handle pre-flight requests
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}
