package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"recurring-billing/internal/api/handler/dto"
	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
)

type ScheduleHandler struct {
	service   schedule.ScheduleService
	generator invoice.Generator
	logger    *slog.Logger
}

func NewScheduleHandler(s schedule.ScheduleService, g invoice.Generator, l *slog.Logger) *ScheduleHandler {
	return &ScheduleHandler{
		service:   s,
		generator: g,
		logger:    l.With("component", "ScheduleHandler"),
	}
}

func decodeJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return fmt.Errorf("no request body")
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Default().Error("Failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":{"message":"Internal server error"}}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(response)
}

func respondError(w http.ResponseWriter, err error) {
	status, message, field := http.StatusInternalServerError, "An unexpected error occurred.", ""
	var validationError *apperrors.ValidationError
	var appErr *apperrors.AppError

	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, message = http.StatusNotFound, "Resource not found."
	case errors.Is(err, apperrors.ErrInvalidArgument), errors.Is(err, apperrors.ErrValidation):
		status, message = http.StatusBadRequest, err.Error()
	case errors.Is(err, apperrors.ErrScheduleNotActive), errors.Is(err, apperrors.ErrInvalidTransition):
		status, message = http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, apperrors.ErrDuplicateGeneration), errors.Is(err, apperrors.ErrConflict):
		status, message = http.StatusConflict, err.Error()
	case errors.As(err, &validationError):
		status, message, field = http.StatusBadRequest, validationError.Message, validationError.Field
	case errors.As(err, &appErr):
		message = appErr.Error()
	default:
		slog.Default().Error("Unhandled internal error", "error", err)
	}

	resp := dto.ErrorResponse{
		Error: dto.ErrorDetail{
			Message: message,
			Field:   field,
		},
	}
	respondJSON(w, status, resp)
}

func getScheduleIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "scheduleID")
	if idStr == "" {
		return 0, fmt.Errorf("scheduleID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// CreateSchedule handles the creation of a new billing schedule.
//
// @Summary Create a billing schedule
// @Description Creates a recurring billing schedule and computes its first next billing date.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param request body dto.CreateScheduleRequest true "Schedule creation request payload"
// @Success 201 {object} dto.ScheduleResponse "Schedule successfully created"
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload or validation error"
// @Failure 500 {object} dto.ErrorResponse "Internal server error"
// @Router /schedules [post]
// @Security BearerAuth
func (h *ScheduleHandler) CreateSchedule(w http.ResponseWriter, r *http.Request) {
	var req dto.CreateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	sched, err := req.ToDomain()
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	created, err := h.service.CreateSchedule(r.Context(), sched)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewScheduleResponse(created))
}

// GetSchedule retrieves a billing schedule by ID.
//
// @Summary Retrieve a billing schedule
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 404 {object} dto.ErrorResponse "Schedule not found"
// @Router /schedules/{scheduleID} [get]
// @Security BearerAuth
func (h *ScheduleHandler) GetSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	sched, err := h.service.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewScheduleResponse(sched))
}

// ListSchedules lists billing schedules, optionally filtered.
//
// @Summary List billing schedules
// @Tags Schedules
// @Produce json
// @Param customerId query int false "Filter by customer"
// @Param status query string false "Filter by status (ACTIVE, PAUSED, CANCELLED, COMPLETED)"
// @Success 200 {array} dto.ScheduleResponse
// @Router /schedules [get]
// @Security BearerAuth
func (h *ScheduleHandler) ListSchedules(w http.ResponseWriter, r *http.Request) {
	var filter schedule.ListFilter
	if v := r.URL.Query().Get("customerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid customerId filter", apperrors.ErrInvalidArgument))
			return
		}
		filter.CustomerID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = schedule.ScheduleStatus(v)
	}

	schedules, err := h.service.ListSchedules(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	out := make([]dto.ScheduleResponse, 0, len(schedules))
	for _, s := range schedules {
		out = append(out, dto.NewScheduleResponse(s))
	}
	respondJSON(w, http.StatusOK, out)
}

// UpdateSchedule updates the editable fields of a schedule.
//
// @Summary Update a billing schedule
// @Tags Schedules
// @Accept json
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Param request body dto.UpdateScheduleRequest true "Schedule update payload"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid request payload"
// @Failure 404 {object} dto.ErrorResponse "Schedule not found"
// @Router /schedules/{scheduleID} [put]
// @Security BearerAuth
func (h *ScheduleHandler) UpdateSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateScheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	sched, err := req.ToDomain()
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	sched.ID = scheduleID

	updated, err := h.service.UpdateSchedule(r.Context(), sched)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewScheduleResponse(updated))
}

// DeleteSchedule removes a schedule outright.
//
// @Summary Delete a billing schedule
// @Description Permanently removes the schedule record. Use the cancel endpoint to retire a schedule while keeping its history.
// @Tags Schedules
// @Param scheduleID path int true "Schedule ID"
// @Success 204 "Schedule deleted"
// @Failure 404 {object} dto.ErrorResponse "Schedule not found"
// @Router /schedules/{scheduleID} [delete]
// @Security BearerAuth
func (h *ScheduleHandler) DeleteSchedule(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	if err := h.service.DeleteSchedule(r.Context(), scheduleID); err != nil {
		respondError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// PauseSchedule pauses an active schedule.
//
// @Summary Pause a billing schedule
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 422 {object} dto.ErrorResponse "Illegal status transition"
// @Router /schedules/{scheduleID}/pause [post]
// @Security BearerAuth
func (h *ScheduleHandler) PauseSchedule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.PauseSchedule)
}

// ResumeSchedule reactivates a paused schedule and recomputes its next billing date.
//
// @Summary Resume a billing schedule
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 422 {object} dto.ErrorResponse "Illegal status transition"
// @Router /schedules/{scheduleID}/resume [post]
// @Security BearerAuth
func (h *ScheduleHandler) ResumeSchedule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.ResumeSchedule)
}

// CancelSchedule cancels a schedule permanently.
//
// @Summary Cancel a billing schedule
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 200 {object} dto.ScheduleResponse
// @Failure 422 {object} dto.ErrorResponse "Illegal status transition"
// @Router /schedules/{scheduleID}/cancel [post]
// @Security BearerAuth
func (h *ScheduleHandler) CancelSchedule(w http.ResponseWriter, r *http.Request) {
	h.lifecycle(w, r, h.service.CancelSchedule)
}

func (h *ScheduleHandler) lifecycle(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id int64) (*schedule.BillingSchedule, error)) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	sched, err := op(r.Context(), scheduleID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewScheduleResponse(sched))
}

// GenerateNow triggers synchronous invoice generation for one schedule.
//
// @Summary Generate the current cycle's invoice immediately
// @Description Runs the same generation path as the batch job, regardless of the schedule's auto-generate flag. Subject to the active-status precondition and the one-invoice-per-cycle guard.
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 201 {object} dto.InvoiceResponse "Invoice generated"
// @Failure 409 {object} dto.ErrorResponse "Invoice already generated for this cycle"
// @Failure 422 {object} dto.ErrorResponse "Schedule is not active"
// @Router /schedules/{scheduleID}/generate [post]
// @Security BearerAuth
func (h *ScheduleHandler) GenerateNow(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	inv, err := h.generator.Generate(r.Context(), scheduleID, time.Now())
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, dto.NewInvoiceResponse(inv))
}

// GetNotificationPlan previews the reminder triggers for the current cycle.
//
// @Summary Preview notification triggers for a schedule
// @Tags Schedules
// @Produce json
// @Param scheduleID path int true "Schedule ID"
// @Success 200 {object} dto.NotificationPlanResponse
// @Failure 404 {object} dto.ErrorResponse "Schedule not found"
// @Router /schedules/{scheduleID}/notifications [get]
// @Security BearerAuth
func (h *ScheduleHandler) GetNotificationPlan(w http.ResponseWriter, r *http.Request) {
	scheduleID, err := getScheduleIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	sched, err := h.service.GetSchedule(r.Context(), scheduleID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewNotificationPlanResponse(sched))
}
