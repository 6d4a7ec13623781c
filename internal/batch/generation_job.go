package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"
)

// InvoiceGenerationJob drives the invoice generator over every due schedule.
// Failures are isolated per schedule: one broken schedule never blocks the
// others from being billed on time.
type InvoiceGenerationJob struct {
	scheduleRepo    schedule.Repository
	generator       invoice.Generator
	logger          *slog.Logger
	workerCount     int
	scheduleTimeout time.Duration
	now             func() time.Time
}

func NewInvoiceGenerationJob(
	scheduleRepo schedule.Repository,
	generator invoice.Generator,
	logger *slog.Logger,
	workerCount int,
	scheduleTimeout time.Duration,
) *InvoiceGenerationJob {
	if scheduleRepo == nil || generator == nil || logger == nil {
		panic("InvoiceGenerationJob dependencies cannot be nil")
	}
	if workerCount <= 0 {
		workerCount = 1
	}
	if scheduleTimeout <= 0 {
		scheduleTimeout = 30 * time.Second
	}
	return &InvoiceGenerationJob{
		scheduleRepo:    scheduleRepo,
		generator:       generator,
		logger:          logger.With("job", "InvoiceGeneration"),
		workerCount:     workerCount,
		scheduleTimeout: scheduleTimeout,
		now:             time.Now,
	}
}

func (j *InvoiceGenerationJob) Run(ctx context.Context) error {
	startTime := j.now()
	asOf := schedule.DateOnly(startTime.UTC())
	j.logger.InfoContext(ctx, "Starting invoice generation run.", slog.Time("asOf", asOf))

	dueIDs, err := j.scheduleRepo.ListDueScheduleIDs(ctx, asOf)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to list due schedules, aborting run.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to list due schedules: %w", err)
	}
	j.logger.InfoContext(ctx, "Fetched due schedule IDs.", slog.Int("count", len(dueIDs)))

	if len(dueIDs) == 0 {
		j.logger.InfoContext(ctx, "No schedules due for generation.")
		monitoring.RecordBatchRun(time.Since(startTime))
		return nil
	}

	var (
		wg        sync.WaitGroup
		generated atomic.Int32
		skipped   atomic.Int32
		failed    atomic.Int32
	)
	sem := make(chan struct{}, j.workerCount)

	for _, scheduleID := range dueIDs {
		wg.Add(1)
		sem <- struct{}{}
		go func(currentID int64) {
			defer wg.Done()
			defer func() { <-sem }()

			logCtx := j.logger.With(slog.Int64("scheduleID", currentID))

			genCtx, cancel := context.WithTimeout(ctx, j.scheduleTimeout)
			defer cancel()

			inv, genErr := j.generator.Generate(genCtx, currentID, startTime)
			switch {
			case genErr == nil:
				generated.Add(1)
				logCtx.InfoContext(ctx, "Invoice generated for due schedule.", slog.Int64("invoiceID", inv.ID))
			case errors.Is(genErr, apperrors.ErrDuplicateGeneration),
				errors.Is(genErr, apperrors.ErrScheduleNotActive),
				errors.Is(genErr, apperrors.ErrNotFound):
				// Benign races with the manual path or with lifecycle changes
				// made after the schedule was enumerated.
				skipped.Add(1)
				logCtx.WarnContext(ctx, "Skipped schedule during generation run.", slog.Any("reason", genErr))
			default:
				failed.Add(1)
				logCtx.ErrorContext(ctx, "Failed to generate invoice for schedule.", slog.Any("error", genErr))
			}
		}(scheduleID)
	}

	wg.Wait()
	duration := time.Since(startTime)
	monitoring.RecordBatchRun(duration)

	summaryLog := j.logger.With(
		slog.Duration("duration", duration),
		slog.Int("schedules_due", len(dueIDs)),
		slog.Int("invoices_generated", int(generated.Load())),
		slog.Int("schedules_skipped", int(skipped.Load())),
		slog.Int("errors_encountered", int(failed.Load())),
	)
	if failed.Load() > 0 {
		summaryLog.WarnContext(ctx, "Invoice generation run finished with errors.")
		return fmt.Errorf("generation run completed with %d errors", failed.Load())
	}
	summaryLog.InfoContext(ctx, "Invoice generation run finished successfully.")
	return nil
}
