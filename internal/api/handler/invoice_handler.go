package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"recurring-billing/internal/api/handler/dto"
	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/go-chi/chi/v5"
)

type InvoiceHandler struct {
	service invoice.InvoiceService
	logger  *slog.Logger
}

func NewInvoiceHandler(s invoice.InvoiceService, l *slog.Logger) *InvoiceHandler {
	return &InvoiceHandler{
		service: s,
		logger:  l.With("component", "InvoiceHandler"),
	}
}

func getInvoiceIDFromURL(r *http.Request) (int64, error) {
	idStr := chi.URLParam(r, "invoiceID")
	if idStr == "" {
		return 0, fmt.Errorf("invoiceID not found in URL path")
	}
	return strconv.ParseInt(idStr, 10, 64)
}

// ListInvoices lists invoices, optionally filtered.
//
// @Summary List invoices
// @Tags Invoices
// @Produce json
// @Param customerId query int false "Filter by customer"
// @Param scheduleId query int false "Filter by billing schedule"
// @Param status query string false "Filter by status (PENDING, PAID, OVERDUE, CANCELLED)"
// @Success 200 {array} dto.InvoiceResponse
// @Router /invoices [get]
// @Security BearerAuth
func (h *InvoiceHandler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	var filter invoice.ListFilter
	if v := r.URL.Query().Get("customerId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid customerId filter", apperrors.ErrInvalidArgument))
			return
		}
		filter.CustomerID = id
	}
	if v := r.URL.Query().Get("scheduleId"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			respondError(w, fmt.Errorf("%w: invalid scheduleId filter", apperrors.ErrInvalidArgument))
			return
		}
		filter.ScheduleID = id
	}
	if v := r.URL.Query().Get("status"); v != "" {
		filter.Status = invoice.InvoiceStatus(v)
	}

	invoices, err := h.service.ListInvoices(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewInvoiceListResponse(invoices))
}

// GetInvoice retrieves an invoice by ID.
//
// @Summary Retrieve an invoice
// @Tags Invoices
// @Produce json
// @Param invoiceID path int true "Invoice ID"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 404 {object} dto.ErrorResponse "Invoice not found"
// @Router /invoices/{invoiceID} [get]
// @Security BearerAuth
func (h *InvoiceHandler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := getInvoiceIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	inv, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewInvoiceResponse(inv))
}

// UpdateInvoiceStatus records a status change on an invoice.
//
// @Summary Update invoice status
// @Description Marks an invoice paid, overdue or cancelled. Cancelled invoices cannot change status again.
// @Tags Invoices
// @Accept json
// @Produce json
// @Param invoiceID path int true "Invoice ID"
// @Param request body dto.UpdateInvoiceStatusRequest true "Status update payload"
// @Success 200 {object} dto.InvoiceResponse
// @Failure 400 {object} dto.ErrorResponse "Invalid status"
// @Failure 409 {object} dto.ErrorResponse "Invoice is cancelled"
// @Router /invoices/{invoiceID}/status [patch]
// @Security BearerAuth
func (h *InvoiceHandler) UpdateInvoiceStatus(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := getInvoiceIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	var req dto.UpdateInvoiceStatusRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}
	if err := req.Validate(); err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	inv, err := h.service.RecordStatusChange(r.Context(), invoiceID, invoice.InvoiceStatus(req.Status), req.ParsedPaymentDate(), req.TransactionID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewInvoiceResponse(inv))
}

// GetSurcharge computes the late fee and accrued interest for an invoice.
//
// @Summary Compute the overdue surcharge for an invoice
// @Description Returns the flat late fee plus simple daily interest owed as of the given date. Zero when the invoice is not past due.
// @Tags Invoices
// @Produce json
// @Param invoiceID path int true "Invoice ID"
// @Param asOf query string false "Valuation date (YYYY-MM-DD), defaults to today"
// @Success 200 {object} dto.SurchargeResponse
// @Failure 404 {object} dto.ErrorResponse "Invoice not found"
// @Router /invoices/{invoiceID}/surcharge [get]
// @Security BearerAuth
func (h *InvoiceHandler) GetSurcharge(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := getInvoiceIDFromURL(r)
	if err != nil {
		respondError(w, fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
		return
	}

	asOf := time.Now()
	if v := r.URL.Query().Get("asOf"); v != "" {
		asOf, err = time.Parse("2006-01-02", v)
		if err != nil {
			respondError(w, fmt.Errorf("%w: asOf must be YYYY-MM-DD", apperrors.ErrInvalidArgument))
			return
		}
	}

	inv, err := h.service.GetInvoice(r.Context(), invoiceID)
	if err != nil {
		respondError(w, err)
		return
	}

	surcharge, err := h.service.Surcharge(r.Context(), invoiceID, asOf)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, dto.NewSurchargeResponse(inv, asOf, surcharge))
}
