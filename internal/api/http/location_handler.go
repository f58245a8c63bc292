// internal/api/http/location_handler.go
package http

import (
	"errors"
	"log/slog"
	"net/http"

	"tasks-pizza/internal/domain"
	"tasks-pizza/internal/usecase"

	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	msgMissingID       = "No ?id="
	msgLocationMissing = "No data for this location found."
)

// LocationHandler serves the task target and the /locations routes.
type LocationHandler struct {
	service  *usecase.LocationService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewLocationHandler(service *usecase.LocationService, logger *slog.Logger) *LocationHandler {
	return &LocationHandler{
		service:  service,
		logger:   logger.With("component", "location-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("tasks-pizza-api"),
	}
}

// RegisterRoutes registers the location routes to mux.
func (h *LocationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/target", instrument(h.tracer, "/target", h.handleTarget))
	mux.Handle("/locations/get", instrument(h.tracer, "/locations/get", h.handleGet))
	mux.Handle("/locations/listnames", instrument(h.tracer, "/locations/listnames", h.handleListNames))

	// Paths of the earlier maps API.
	mux.Handle("/maps/add", instrument(h.tracer, "/maps/add", h.handleTarget))
	mux.Handle("/maps/get", instrument(h.tracer, "/maps/get", h.handleGet))
	mux.Handle("/maps/listnames", instrument(h.tracer, "/maps/listnames", h.handleListNames))
}

func (h *LocationHandler) idRequest(w http.ResponseWriter, r *http.Request, span trace.Span) (IDRequest, bool) {
	req := IDRequest{ID: r.URL.Query().Get("id")}
	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		writeValidationError(w, err, msgMissingID)
		return req, false
	}
	span.SetAttributes(attribute.String("location.id", req.ID))
	return req, true
}

// handleTarget is called by the queue for every task.
func (h *LocationHandler) handleTarget(w http.ResponseWriter, r *http.Request) {
	ctx, span := h.tracer.Start(r.Context(), "handler.Target")
	defer span.End()

	req, ok := h.idRequest(w, r, span)
	if !ok {
		return
	}
	h.logger.Info("task delivered", "identifier", req.ID, "task_name", r.Header.Get("X-CloudTasks-TaskName"))

	location, err := h.service.Add(ctx, req.ID)
	if err != nil {
		span.SetStatus(codes.Error, "failed to store location")
		span.RecordError(err)
		h.logger.Error("error storing location", "identifier", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (h *LocationHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.GetLocation")
	defer span.End()

	req, ok := h.idRequest(w, r, span)
	if !ok {
		return
	}

	location, err := h.service.Get(ctx, req.ID)
	if errors.Is(err, domain.ErrLocationNotFound) {
		writeError(w, http.StatusNotFound, msgLocationMissing)
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, "failed to get location")
		span.RecordError(err)
		h.logger.Error("error getting location", "identifier", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, location)
}

func (h *LocationHandler) handleListNames(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.ListLocations")
	defer span.End()

	names, err := h.service.ListNames(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list locations")
		span.RecordError(err)
		h.logger.Error("error listing locations", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, names)
}
