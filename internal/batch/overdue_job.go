package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/infrastructure/monitoring"
)

// OverdueSweepJob flips pending invoices past their due date to OVERDUE so
// surcharge reporting and dunning work off an honest status.
type OverdueSweepJob struct {
	invoiceRepo invoice.Repository
	logger      *slog.Logger
	now         func() time.Time
}

func NewOverdueSweepJob(invoiceRepo invoice.Repository, logger *slog.Logger) *OverdueSweepJob {
	if invoiceRepo == nil || logger == nil {
		panic("OverdueSweepJob dependencies cannot be nil")
	}
	return &OverdueSweepJob{
		invoiceRepo: invoiceRepo,
		logger:      logger.With("job", "OverdueSweep"),
		now:         time.Now,
	}
}

func (j *OverdueSweepJob) Run(ctx context.Context) error {
	asOf := schedule.DateOnly(j.now().UTC())
	j.logger.InfoContext(ctx, "Starting overdue sweep.", slog.Time("asOf", asOf))

	swept, err := j.invoiceRepo.MarkPendingOverdue(ctx, asOf)
	if err != nil {
		j.logger.ErrorContext(ctx, "Overdue sweep failed.", slog.Any("error", err))
		return fmt.Errorf("overdue sweep failed: %w", err)
	}

	monitoring.RecordOverdueSwept(swept)
	j.logger.InfoContext(ctx, "Overdue sweep finished.", slog.Int64("invoices_marked", swept))
	return nil
}
