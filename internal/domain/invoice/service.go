package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// InvoiceService covers the read side plus the narrow mutations the engine
// allows on an existing invoice: status and payment markers.
type InvoiceService interface {
	GetInvoice(ctx context.Context, invoiceID int64) (*Invoice, error)

	ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error)

	// RecordStatusChange is the entry point for the external
	// payment-recording collaborator.
	RecordStatusChange(ctx context.Context, invoiceID int64, status InvoiceStatus, paymentDate *time.Time, transactionID *string) (*Invoice, error)

	// Surcharge reports the overdue penalty for an invoice as of a date,
	// using the penalty terms of the schedule that produced it.
	Surcharge(ctx context.Context, invoiceID int64, asOf time.Time) (decimal.Decimal, error)
}

type invoiceServiceImpl struct {
	repo         Repository
	scheduleRepo schedule.Repository
	logger       *slog.Logger
}

func NewInvoiceService(repo Repository, scheduleRepo schedule.Repository, logger *slog.Logger) InvoiceService {
	if repo == nil || scheduleRepo == nil {
		panic("invoice service repositories cannot be nil")
	}
	return &invoiceServiceImpl{
		repo:         repo,
		scheduleRepo: scheduleRepo,
		logger:       logger.With(slog.String("component", "InvoiceService")),
	}
}

func (s *invoiceServiceImpl) GetInvoice(ctx context.Context, invoiceID int64) (*Invoice, error) {
	inv, err := s.repo.GetInvoiceByID(ctx, invoiceID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: invoice %d not found", apperrors.ErrNotFound, invoiceID)
		}
		s.logger.ErrorContext(ctx, "Failed to get invoice", "invoiceID", invoiceID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get invoice %d: %v", apperrors.ErrDatabase, invoiceID, err)
	}
	return inv, nil
}

func (s *invoiceServiceImpl) ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error) {
	invoices, err := s.repo.ListInvoices(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list invoices", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to list invoices: %v", apperrors.ErrDatabase, err)
	}
	return invoices, nil
}

func (s *invoiceServiceImpl) RecordStatusChange(ctx context.Context, invoiceID int64, status InvoiceStatus, paymentDate *time.Time, transactionID *string) (*Invoice, error) {
	if !status.Valid() {
		return nil, apperrors.NewValidationError("status", fmt.Sprintf("unknown invoice status %q", status))
	}

	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if inv.Status == StatusCancelled {
		return nil, fmt.Errorf("%w: invoice %d is cancelled", apperrors.ErrConflict, invoiceID)
	}

	if err := s.repo.UpdateInvoiceStatus(ctx, invoiceID, status, paymentDate, transactionID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to update invoice status", "invoiceID", invoiceID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to update invoice %d: %v", apperrors.ErrDatabase, invoiceID, err)
	}

	s.logger.InfoContext(ctx, "Invoice status updated", "invoiceID", invoiceID, "status", status)
	inv.Status = status
	inv.PaymentDate = paymentDate
	inv.TransactionID = transactionID
	return inv, nil
}

func (s *invoiceServiceImpl) Surcharge(ctx context.Context, invoiceID int64, asOf time.Time) (decimal.Decimal, error) {
	inv, err := s.GetInvoice(ctx, invoiceID)
	if err != nil {
		return decimal.Zero, err
	}
	if inv.BillingScheduleID == nil {
		// Ad-hoc invoices carry no penalty terms.
		return decimal.Zero, nil
	}

	sched, err := s.scheduleRepo.GetScheduleByID(ctx, *inv.BillingScheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return decimal.Zero, fmt.Errorf("%w: schedule %d for invoice %d not found", apperrors.ErrNotFound, *inv.BillingScheduleID, invoiceID)
		}
		return decimal.Zero, fmt.Errorf("%w: failed to load schedule %d: %v", apperrors.ErrDatabase, *inv.BillingScheduleID, err)
	}

	return OverdueSurcharge(inv.Amount, inv.DueDate, asOf, TermsFromSchedule(sched)), nil
}
