// internal/api/http/dispatch_handler.go
package http

import (
	"context"
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

// DispatchHandler serves the /tasks routes.
type DispatchHandler struct {
	service  *usecase.DispatchService
	logger   *slog.Logger
	validate *validator.Validate
	tracer   trace.Tracer
}

func NewDispatchHandler(service *usecase.DispatchService, logger *slog.Logger) *DispatchHandler {
	return &DispatchHandler{
		service:  service,
		logger:   logger.With("component", "dispatch-handler"),
		validate: validator.New(),
		tracer:   otel.Tracer("tasks-pizza-api"),
	}
}

// RegisterRoutes registers the dispatch routes to mux.
func (h *DispatchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.Handle("/tasks/start", instrument(h.tracer, "/tasks/start", h.handleStart))
	mux.Handle("/tasks/listnames", instrument(h.tracer, "/tasks/listnames", h.handleListNames))
	mux.Handle("/tasks/history", instrument(h.tracer, "/tasks/history", h.handleHistory))
}

// handleStart runs a dispatch and answers once it is done. The run is not
// cancelled when the client goes away.
func (h *DispatchHandler) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet, http.MethodPost) {
		return
	}
	ctx, span := h.tracer.Start(context.WithoutCancel(r.Context()), "handler.StartDispatch")
	defer span.End()

	report, err := h.service.Run(ctx)
	if errors.Is(err, domain.ErrRunInProgress) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		span.SetStatus(codes.Error, "dispatch run failed")
		span.RecordError(err)
		h.logger.Error("dispatch run failed", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	span.SetAttributes(attribute.String("run.id", report.RunID))
	writeJSON(w, http.StatusOK, NewStartResponse(report))
}

func (h *DispatchHandler) handleListNames(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.ListNames")
	defer span.End()

	names, err := h.service.ListIdentifiers(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list identifiers")
		span.RecordError(err)
		h.logger.Error("error listing identifiers", "error", err)
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, names)
}

// handleHistory lists the executions of the task created for ?id=.
func (h *DispatchHandler) handleHistory(w http.ResponseWriter, r *http.Request) {
	if !allowMethods(w, r, http.MethodGet) {
		return
	}
	ctx, span := h.tracer.Start(r.Context(), "handler.TaskHistory")
	defer span.End()

	page, pageSize := pageParams(r)
	req := HistoryRequest{ID: r.URL.Query().Get("id"), Page: page, PageSize: pageSize}
	if err := h.validate.Struct(req); err != nil {
		span.SetStatus(codes.Error, "Validation failed")
		span.RecordError(err)
		writeValidationError(w, err, "Validation failed")
		return
	}
	if req.Page < 1 {
		req.Page = 1
	}
	if req.PageSize == 0 {
		req.PageSize = 20
	}
	span.SetAttributes(attribute.Int("page", req.Page), attribute.Int("page_size", req.PageSize))

	history, err := h.service.ListHistory(ctx, req.ID, req.Page, req.PageSize)
	if err != nil {
		span.SetStatus(codes.Error, "failed to list task history")
		span.RecordError(err)
		h.logger.Error("error listing task history", "identifier", req.ID, "error", err)
		writeError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, http.StatusOK, history)
}
