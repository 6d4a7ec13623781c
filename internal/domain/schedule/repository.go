package schedule

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// ListFilter narrows ListSchedules. Zero values mean "no constraint".
type ListFilter struct {
	CustomerID int64
	Status     ScheduleStatus
}

type Repository interface {
	CreateSchedule(ctx context.Context, s *BillingSchedule) (*BillingSchedule, error)

	GetScheduleByID(ctx context.Context, scheduleID int64) (*BillingSchedule, error)

	ListSchedules(ctx context.Context, filter ListFilter) ([]*BillingSchedule, error)

	// ListDueScheduleIDs enumerates active, auto-generating schedules whose
	// next_billing_date is on or before asOf.
	ListDueScheduleIDs(ctx context.Context, asOf time.Time) ([]int64, error)

	// ListActiveWithNotifications returns active schedules carrying at least
	// one notification offset, for the reminder planner.
	ListActiveWithNotifications(ctx context.Context) ([]*BillingSchedule, error)

	UpdateSchedule(ctx context.Context, s *BillingSchedule) error

	// UpdateScheduleInTx writes the full row inside the caller's transaction.
	// Callers that read the row via FindScheduleByIDForUpdate use this so the
	// write lands on the state observed under the row lock.
	UpdateScheduleInTx(ctx context.Context, tx pgx.Tx, s *BillingSchedule) error

	DeleteSchedule(ctx context.Context, scheduleID int64) error

	// FindScheduleByIDForUpdate locks the schedule row for the duration of tx,
	// serializing generation attempts for a single schedule.
	FindScheduleByIDForUpdate(ctx context.Context, tx pgx.Tx, scheduleID int64) (*BillingSchedule, error)

	// AdvanceScheduleInTx persists the post-generation schedule state
	// (next_billing_date, installment counters, execution markers, status)
	// inside the generation transaction.
	AdvanceScheduleInTx(ctx context.Context, tx pgx.Tx, s *BillingSchedule) error

	BeginTx(ctx context.Context) (pgx.Tx, error)

	CommitTx(ctx context.Context, tx pgx.Tx) error

	RollbackTx(ctx context.Context, tx pgx.Tx) error
}
