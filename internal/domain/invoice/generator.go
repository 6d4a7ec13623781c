package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/event"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

// Generator produces exactly one invoice per billing cycle and advances the
// schedule in the same transaction. Both the batch job and the manual
// "generate now" endpoint go through Generate; the schedule row lock makes
// the two paths mutually exclusive per schedule.
type Generator interface {
	Generate(ctx context.Context, scheduleID int64, asOf time.Time) (*Invoice, error)
}

type generatorImpl struct {
	scheduleRepo    schedule.Repository
	invoiceRepo     Repository
	customerService customer.CustomerService
	pub             event.EventPublisher
	logger          *slog.Logger
	now             func() time.Time
}

func NewGenerator(
	scheduleRepo schedule.Repository,
	invoiceRepo Repository,
	customerService customer.CustomerService,
	pub event.EventPublisher,
	logger *slog.Logger,
) Generator {
	if scheduleRepo == nil || invoiceRepo == nil || customerService == nil || logger == nil {
		panic("Generator dependencies cannot be nil")
	}
	return &generatorImpl{
		scheduleRepo:    scheduleRepo,
		invoiceRepo:     invoiceRepo,
		customerService: customerService,
		pub:             pub,
		logger:          logger.With(slog.String("component", "InvoiceGenerator")),
		now:             time.Now,
	}
}

func (g *generatorImpl) Generate(ctx context.Context, scheduleID int64, asOf time.Time) (inv *Invoice, err error) {
	logCtx := g.logger.With(slog.Int64("scheduleID", scheduleID))
	logCtx.InfoContext(ctx, "Generating invoice for schedule")

	if asOf.IsZero() {
		asOf = g.now()
	}

	tx, err := g.scheduleRepo.BeginTx(ctx)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to begin generation transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not begin transaction: %v", apperrors.ErrDatabase, err)
	}

	defer func() {
		// recover first: a panic unwinding through here must count as a
		// failure, not fall through to the "success" branch below.
		if p := recover(); p != nil {
			monitoring.RecordGeneration("failure_internal")
			logCtx.ErrorContext(ctx, "Panic during invoice generation", slog.Any("error", p))
			_ = g.scheduleRepo.RollbackTx(ctx, tx)
			panic(p)
		}

		status := "success"
		switch {
		case errors.Is(err, apperrors.ErrScheduleNotActive):
			status = "failure_not_active"
		case errors.Is(err, apperrors.ErrDuplicateGeneration):
			status = "failure_duplicate"
		case err != nil:
			status = "failure_internal"
		}
		monitoring.RecordGeneration(status)

		if err != nil {
			_ = g.scheduleRepo.RollbackTx(ctx, tx)
		}
	}()

	sched, err := g.scheduleRepo.FindScheduleByIDForUpdate(ctx, tx, scheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			logCtx.WarnContext(ctx, "Schedule not found for generation")
			return nil, fmt.Errorf("%w: billing schedule %d not found", apperrors.ErrNotFound, scheduleID)
		}
		logCtx.ErrorContext(ctx, "Failed to lock schedule row", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not lock schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	if sched.Status != schedule.StatusActive {
		logCtx.WarnContext(ctx, "Generation attempted on non-active schedule", "status", sched.Status)
		return nil, fmt.Errorf("%w: schedule %d is %s", apperrors.ErrScheduleNotActive, scheduleID, sched.Status)
	}

	cycleDue := sched.NextBillingDate
	exists, err := g.invoiceRepo.ExistsForCycleInTx(ctx, tx, scheduleID, cycleDue)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed idempotency check", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not check for existing cycle invoice: %v", apperrors.ErrDatabase, err)
	}
	if exists {
		logCtx.WarnContext(ctx, "Invoice already generated for current cycle", "dueDate", cycleDue)
		return nil, fmt.Errorf("%w: schedule %d already billed for cycle due %s",
			apperrors.ErrDuplicateGeneration, scheduleID, cycleDue.Format(time.DateOnly))
	}

	paymentMethod, err := g.customerService.ResolvePaymentMethod(ctx, sched.CustomerID, sched.PaymentMethod)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to resolve payment method", slog.Any("error", err))
		return nil, fmt.Errorf("failed to resolve payment method for schedule %d: %w", scheduleID, err)
	}

	newInvoice := &Invoice{
		CustomerID:        sched.CustomerID,
		BillingScheduleID: &sched.ID,
		Amount:            sched.Amount,
		DueDate:           cycleDue,
		Status:            StatusPending,
		PaymentMethod:     paymentMethod,
		PaymentGatewayID:  sched.PaymentGatewayID,
		Description:       cycleDescription(sched),
	}

	created, err := g.invoiceRepo.CreateInvoiceInTx(ctx, tx, newInvoice)
	if err != nil {
		logCtx.ErrorContext(ctx, "Failed to insert invoice", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not insert invoice for schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	g.advance(sched, created.ID, asOf)

	if err = g.scheduleRepo.AdvanceScheduleInTx(ctx, tx, sched); err != nil {
		logCtx.ErrorContext(ctx, "Failed to advance schedule", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not advance schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	if err = g.scheduleRepo.CommitTx(ctx, tx); err != nil {
		logCtx.ErrorContext(ctx, "Failed to commit generation transaction", slog.Any("error", err))
		return nil, fmt.Errorf("%w: could not commit generation for schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	logCtx.InfoContext(ctx, "Invoice generated",
		"invoiceID", created.ID,
		"dueDate", created.DueDate,
		"nextBillingDate", sched.NextBillingDate,
		"scheduleStatus", sched.Status,
	)

	g.publishGenerated(ctx, sched, created)
	return created, nil
}

// advance mutates the locked schedule to its post-generation state. Runs only
// after the invoice insert succeeded, inside the same transaction.
func (g *generatorImpl) advance(sched *schedule.BillingSchedule, invoiceID int64, asOf time.Time) {
	sched.LastGeneratedInvoiceID = &invoiceID
	sched.LastExecutionDate = &asOf
	sched.NextBillingDate = schedule.NextBillingDate(sched.NextBillingDate, sched.DueDay, sched.Frequency, sched.CustomDays)

	if sched.Installments != nil {
		sched.InstallmentsGenerated++
		if sched.InstallmentsComplete() {
			sched.Status = schedule.StatusCompleted
		}
	}
	if sched.EndDate != nil && sched.Status == schedule.StatusActive && sched.NextBillingDate.After(*sched.EndDate) {
		sched.Status = schedule.StatusCompleted
	}
}

func (g *generatorImpl) publishGenerated(ctx context.Context, sched *schedule.BillingSchedule, inv *Invoice) {
	if g.pub == nil {
		return
	}
	var installment *int
	if sched.Installments != nil {
		n := sched.InstallmentsGenerated
		installment = &n
	}
	pubErr := g.pub.PublishInvoiceGenerated(ctx, event.InvoiceGeneratedEvent{
		InvoiceID:     inv.ID,
		ScheduleID:    sched.ID,
		CustomerID:    inv.CustomerID,
		Amount:        inv.Amount.StringFixed(2),
		DueDate:       inv.DueDate,
		PaymentMethod: inv.PaymentMethod,
		Installment:   installment,
		Timestamp:     time.Now(),
	})
	if pubErr != nil {
		g.logger.WarnContext(ctx, "Failed to publish invoice generated event",
			"invoiceID", inv.ID, slog.Any("error", pubErr))
	}
}

func cycleDescription(sched *schedule.BillingSchedule) string {
	desc := sched.Title
	if desc == "" {
		desc = sched.Description
	}
	if sched.Installments != nil {
		return fmt.Sprintf("%s (installment %d/%d)", desc, sched.InstallmentsGenerated+1, *sched.Installments)
	}
	return fmt.Sprintf("%s (cycle due %s)", desc, sched.NextBillingDate.Format(time.DateOnly))
}
