package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/event"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

// ScheduleService owns schedule CRUD and the manual status state machine.
// COMPLETED is reached only through the invoice generator; the service only
// ever moves schedules between ACTIVE, PAUSED and CANCELLED.
type ScheduleService interface {
	CreateSchedule(ctx context.Context, s *BillingSchedule) (*BillingSchedule, error)

	GetSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error)

	ListSchedules(ctx context.Context, filter ListFilter) ([]*BillingSchedule, error)

	UpdateSchedule(ctx context.Context, s *BillingSchedule) (*BillingSchedule, error)

	// DeleteSchedule removes the record outright. Distinct from cancellation:
	// cancelling keeps the row as a terminal-status audit trail.
	DeleteSchedule(ctx context.Context, scheduleID int64) error

	PauseSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error)

	// ResumeSchedule reactivates a paused schedule and recomputes
	// next_billing_date from today. Cycles missed while paused are skipped,
	// never back-filled.
	ResumeSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error)

	CancelSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error)
}

type scheduleServiceImpl struct {
	repo      Repository
	customers customer.CustomerService
	pub       event.EventPublisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewScheduleService(r Repository, customers customer.CustomerService, pub event.EventPublisher, logger *slog.Logger) ScheduleService {
	if r == nil {
		panic("schedule repository cannot be nil")
	}
	if customers == nil {
		panic("customer service cannot be nil")
	}
	return &scheduleServiceImpl{
		repo:      r,
		customers: customers,
		pub:       pub,
		logger:    logger.With(slog.String("component", "ScheduleService")),
		now:       Today,
	}
}

func (s *scheduleServiceImpl) CreateSchedule(ctx context.Context, sched *BillingSchedule) (*BillingSchedule, error) {
	s.logger.InfoContext(ctx, "Creating billing schedule", "customerID", sched.CustomerID, "title", sched.Title)

	// A plan-backed schedule may omit the amount; the plan's current price is
	// frozen into the schedule at creation time.
	if !sched.Amount.IsPositive() && sched.PlanID != nil {
		plan, err := s.customers.GetPlan(ctx, *sched.PlanID)
		if err != nil {
			s.logger.WarnContext(ctx, "Failed to resolve plan price", "planID", *sched.PlanID, slog.Any("error", err))
			return nil, err
		}
		sched.Amount = plan.Price
	}

	sched.StartDate = DateOnly(sched.StartDate)
	sched.Status = StatusActive
	sched.InstallmentsGenerated = 0
	sched.NotificationDays = NewNotificationDays(sched.NotificationDays...)
	if sched.PaymentMethod == "" {
		sched.PaymentMethod = PaymentMethodDefault
	}
	if sched.NextBillingDate.IsZero() {
		sched.NextBillingDate = NextBillingDate(sched.StartDate, sched.DueDay, sched.Frequency, sched.CustomDays)
	} else {
		sched.NextBillingDate = DateOnly(sched.NextBillingDate)
	}

	if err := sched.Validate(); err != nil {
		s.logger.WarnContext(ctx, "Schedule validation failed", slog.Any("error", err))
		return nil, err
	}

	created, err := s.repo.CreateSchedule(ctx, sched)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to save billing schedule", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to save billing schedule: %v", apperrors.ErrDatabase, err)
	}

	s.logger.InfoContext(ctx, "Billing schedule created", "scheduleID", created.ID, "nextBillingDate", created.NextBillingDate)
	return created, nil
}

func (s *scheduleServiceImpl) GetSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error) {
	sched, err := s.repo.GetScheduleByID(ctx, scheduleID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: billing schedule %d not found", apperrors.ErrNotFound, scheduleID)
		}
		s.logger.ErrorContext(ctx, "Failed to get billing schedule", "scheduleID", scheduleID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to get billing schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}
	return sched, nil
}

func (s *scheduleServiceImpl) ListSchedules(ctx context.Context, filter ListFilter) ([]*BillingSchedule, error) {
	schedules, err := s.repo.ListSchedules(ctx, filter)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list billing schedules", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to list billing schedules: %v", apperrors.ErrDatabase, err)
	}
	return schedules, nil
}

func (s *scheduleServiceImpl) UpdateSchedule(ctx context.Context, sched *BillingSchedule) (*BillingSchedule, error) {
	s.logger.InfoContext(ctx, "Updating billing schedule", "scheduleID", sched.ID)

	updated, err := s.updateLocked(ctx, sched.ID, func(locked *BillingSchedule) error {
		// Only the editable fields come from the request. Status moves only
		// through the lifecycle endpoints, and the generation counters keep
		// whatever value the row lock observed, so an update can never smuggle
		// a transition past the state machine or rewind a committed cycle.
		locked.PlanID = sched.PlanID
		locked.Title = sched.Title
		locked.Description = sched.Description
		locked.Amount = sched.Amount
		locked.Frequency = sched.Frequency
		locked.CustomDays = sched.CustomDays
		locked.DueDay = sched.DueDay
		locked.StartDate = sched.StartDate
		locked.EndDate = sched.EndDate
		locked.NotificationDays = NewNotificationDays(sched.NotificationDays...)
		locked.AutoGenerateInvoice = sched.AutoGenerateInvoice
		locked.PaymentMethod = sched.PaymentMethod
		locked.PaymentGatewayID = sched.PaymentGatewayID
		locked.AutoCharge = sched.AutoCharge
		locked.Installments = sched.Installments
		locked.ApplyLateFee = sched.ApplyLateFee
		locked.LateFeePercentage = sched.LateFeePercentage
		locked.ApplyDailyInterest = sched.ApplyDailyInterest
		locked.DailyInterestPercentage = sched.DailyInterestPercentage
		locked.Notes = sched.Notes

		if err := locked.Validate(); err != nil {
			s.logger.WarnContext(ctx, "Schedule validation failed", "scheduleID", sched.ID, slog.Any("error", err))
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (s *scheduleServiceImpl) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	s.logger.InfoContext(ctx, "Deleting billing schedule", "scheduleID", scheduleID)

	if _, err := s.GetSchedule(ctx, scheduleID); err != nil {
		return err
	}

	if err := s.repo.DeleteSchedule(ctx, scheduleID); err != nil {
		s.logger.ErrorContext(ctx, "Failed to delete billing schedule", "scheduleID", scheduleID, slog.Any("error", err))
		return fmt.Errorf("%w: failed to delete billing schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	s.logger.InfoContext(ctx, "Billing schedule deleted", "scheduleID", scheduleID)
	return nil
}

func (s *scheduleServiceImpl) PauseSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error) {
	// Pausing freezes the cycle: next_billing_date stays untouched.
	return s.transition(ctx, scheduleID, StatusPaused, func(sched *BillingSchedule) {})
}

func (s *scheduleServiceImpl) ResumeSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error) {
	return s.transition(ctx, scheduleID, StatusActive, func(sched *BillingSchedule) {
		sched.NextBillingDate = NextBillingDate(s.now(), sched.DueDay, sched.Frequency, sched.CustomDays)
	})
}

func (s *scheduleServiceImpl) CancelSchedule(ctx context.Context, scheduleID int64) (*BillingSchedule, error) {
	return s.transition(ctx, scheduleID, StatusCancelled, func(sched *BillingSchedule) {})
}

func (s *scheduleServiceImpl) transition(ctx context.Context, scheduleID int64, target ScheduleStatus, apply func(*BillingSchedule)) (*BillingSchedule, error) {
	logCtx := s.logger.With(slog.Int64("scheduleID", scheduleID), slog.String("targetStatus", string(target)))
	logCtx.InfoContext(ctx, "Requesting schedule status transition")

	var oldStatus ScheduleStatus
	sched, err := s.updateLocked(ctx, scheduleID, func(locked *BillingSchedule) error {
		if locked.Status == target {
			logCtx.WarnContext(ctx, "Schedule already in target status")
			return fmt.Errorf("%w: schedule %d is already %s", apperrors.ErrInvalidTransition, scheduleID, target)
		}
		if !locked.Status.CanTransitionTo(target) {
			logCtx.WarnContext(ctx, "Illegal status transition", "currentStatus", locked.Status)
			return fmt.Errorf("%w: cannot move schedule %d from %s to %s", apperrors.ErrInvalidTransition, scheduleID, locked.Status, target)
		}
		oldStatus = locked.Status
		locked.Status = target
		apply(locked)
		return nil
	})
	if err != nil {
		return nil, err
	}

	logCtx.InfoContext(ctx, "Schedule status transition applied", "oldStatus", oldStatus)

	if s.pub != nil {
		pubErr := s.pub.PublishScheduleStatusChanged(ctx, event.ScheduleStatusChangedEvent{
			ScheduleID:      sched.ID,
			CustomerID:      sched.CustomerID,
			OldStatus:       string(oldStatus),
			NewStatus:       string(sched.Status),
			NextBillingDate: sched.NextBillingDate,
			Timestamp:       time.Now(),
		})
		if pubErr != nil {
			logCtx.WarnContext(ctx, "Failed to publish schedule status event", slog.Any("error", pubErr))
		}
	}

	return sched, nil
}

// updateLocked reads the schedule under FOR UPDATE, lets mutate rework it and
// writes it back inside the same transaction. Sharing the row lock with the
// invoice generator means a write here can never land a snapshot taken before
// a generation committed its advance.
func (s *scheduleServiceImpl) updateLocked(ctx context.Context, scheduleID int64, mutate func(*BillingSchedule) error) (*BillingSchedule, error) {
	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to begin schedule update transaction", "scheduleID", scheduleID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to begin schedule update transaction: %v", apperrors.ErrDatabase, err)
	}

	sched, err := s.repo.FindScheduleByIDForUpdate(ctx, tx, scheduleID)
	if err != nil {
		_ = s.repo.RollbackTx(ctx, tx)
		if errors.Is(err, pgx.ErrNoRows) || errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("%w: billing schedule %d not found", apperrors.ErrNotFound, scheduleID)
		}
		s.logger.ErrorContext(ctx, "Failed to lock billing schedule", "scheduleID", scheduleID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to lock billing schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	if err := mutate(sched); err != nil {
		_ = s.repo.RollbackTx(ctx, tx)
		return nil, err
	}

	if err := s.repo.UpdateScheduleInTx(ctx, tx, sched); err != nil {
		_ = s.repo.RollbackTx(ctx, tx)
		s.logger.ErrorContext(ctx, "Failed to persist billing schedule", "scheduleID", scheduleID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to persist billing schedule %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	if err := s.repo.CommitTx(ctx, tx); err != nil {
		_ = s.repo.RollbackTx(ctx, tx)
		s.logger.ErrorContext(ctx, "Failed to commit schedule update", "scheduleID", scheduleID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to commit schedule update for %d: %v", apperrors.ErrDatabase, scheduleID, err)
	}

	return sched, nil
}
