package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/event"
	"recurring-billing/internal/infrastructure/monitoring"
)

// PaymentReminderJob walks active schedules and hands every reminder that
// falls on today to the notification sink. The engine only decides when a
// reminder fires; delivery belongs to the consumer of the events.
type PaymentReminderJob struct {
	scheduleRepo    schedule.Repository
	customerService customer.CustomerService
	pub             event.EventPublisher
	logger          *slog.Logger
	now             func() time.Time
}

func NewPaymentReminderJob(
	scheduleRepo schedule.Repository,
	customerService customer.CustomerService,
	pub event.EventPublisher,
	logger *slog.Logger,
) *PaymentReminderJob {
	if scheduleRepo == nil || customerService == nil || pub == nil || logger == nil {
		panic("PaymentReminderJob dependencies cannot be nil")
	}
	return &PaymentReminderJob{
		scheduleRepo:    scheduleRepo,
		customerService: customerService,
		pub:             pub,
		logger:          logger.With("job", "PaymentReminder"),
		now:             time.Now,
	}
}

func (j *PaymentReminderJob) Run(ctx context.Context) error {
	startTime := j.now()
	today := schedule.DateOnly(startTime.UTC())
	j.logger.InfoContext(ctx, "Starting payment reminder run.", slog.Time("today", today))

	schedules, err := j.scheduleRepo.ListActiveWithNotifications(ctx)
	if err != nil {
		j.logger.ErrorContext(ctx, "Failed to list schedules with notifications, aborting run.", slog.Any("error", err))
		return fmt.Errorf("cannot run job, failed to list schedules: %w", err)
	}

	var published, errorCount int
	for _, sched := range schedules {
		for _, trigger := range schedule.NotificationTriggers(sched.NextBillingDate, sched.NotificationDays) {
			if !trigger.TriggerDate.Equal(today) {
				continue
			}

			logCtx := j.logger.With(
				slog.Int64("scheduleID", sched.ID),
				slog.Int("daysBefore", trigger.DaysBefore),
			)

			cust, custErr := j.customerService.GetCustomer(ctx, sched.CustomerID)
			if custErr != nil {
				logCtx.ErrorContext(ctx, "Failed to look up customer for reminder.", slog.Any("error", custErr))
				errorCount++
				continue
			}

			pubErr := j.pub.PublishPaymentReminder(ctx, event.PaymentReminderEvent{
				ScheduleID:    sched.ID,
				CustomerID:    cust.CustomerID,
				CustomerName:  cust.Name,
				CustomerEmail: cust.Email,
				Title:         sched.Title,
				Amount:        sched.Amount.StringFixed(2),
				DueDate:       sched.NextBillingDate,
				DaysBefore:    trigger.DaysBefore,
				Timestamp:     time.Now(),
			})
			if pubErr != nil {
				logCtx.ErrorContext(ctx, "Failed to publish payment reminder.", slog.Any("error", pubErr))
				errorCount++
				continue
			}
			monitoring.RecordReminderPublished()
			published++
		}
	}

	summaryLog := j.logger.With(
		slog.Duration("duration", time.Since(startTime)),
		slog.Int("schedules_checked", len(schedules)),
		slog.Int("reminders_published", published),
		slog.Int("errors_encountered", errorCount),
	)
	if errorCount > 0 {
		summaryLog.WarnContext(ctx, "Payment reminder run finished with errors.")
		return fmt.Errorf("reminder run completed with %d errors", errorCount)
	}
	summaryLog.InfoContext(ctx, "Payment reminder run finished successfully.")
	return nil
}
