// internal/api/http/worker_handler.go
package http

import (
	"context"
	"net/http"

	"tasks-pizza/internal/master"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// WorkerStatusLister reports the registered queue workers.
type WorkerStatusLister interface {
	Workers(ctx context.Context) []master.WorkerStatus
}

// WorkerHandler serves /workers.
type WorkerHandler struct {
	workers WorkerStatusLister
	tracer  trace.Tracer
}

// NewWorkerHandler creates the handler. A nil lister reports no workers.
func NewWorkerHandler(workers WorkerStatusLister) *WorkerHandler {
	return &WorkerHandler{
		workers: workers,
		tracer:  otel.Tracer("tasks-pizza-api"),
	}
}

func (h *WorkerHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/workers", instrument(h.tracer, "/workers", h.handleList))
}

func (h *WorkerHandler) handleList(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.ListWorkers")
	defer span.End()

	statuses := []master.WorkerStatus{}
	if h.workers != nil {
		statuses = h.workers.Workers(ctx)
	}
	span.SetAttributes(attribute.Int("workers", len(statuses)))
	writeJSON(w, http.StatusOK, statuses)
}
