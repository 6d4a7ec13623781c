package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pashagolub/pgxmock/v4"
)

type DBPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Acquire(ctx context.Context) (*pgxpool.Conn, error)
	Close()
}

var _ DBPool = (*pgxpool.Pool)(nil)

var _ DBPool = (pgxmock.PgxPoolIface)(nil)

var errMsgFormat = "%w: %w"

const scheduleColumns = `id, customer_id, plan_id, title, description, amount, frequency, custom_days,
        due_day, start_date, end_date, next_billing_date, notification_days, auto_generate_invoice,
        payment_method, payment_gateway_id, auto_charge, status, installments, installments_generated,
        apply_late_fee, late_fee_percentage, apply_daily_interest, daily_interest_percentage,
        last_execution_date, last_generated_invoice_id, notes, created_at, updated_at`

type ScheduleRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewScheduleRepository(db DBPool, logger *slog.Logger) *ScheduleRepository {
	return &ScheduleRepository{db: db, logger: logger.With("component", "ScheduleRepository")}
}

func (r *ScheduleRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to begin transaction", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return tx, nil
}

func (r *ScheduleRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	if err := tx.Commit(ctx); err != nil {
		r.logger.ErrorContext(ctx, "Failed to commit transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *ScheduleRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	err := tx.Rollback(ctx)
	if err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		r.logger.ErrorContext(ctx, "Failed to rollback transaction", "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return nil
}

func (r *ScheduleRepository) CreateSchedule(ctx context.Context, s *schedule.BillingSchedule) (*schedule.BillingSchedule, error) {
	sql := `
        INSERT INTO billing_schedules (
            customer_id, plan_id, title, description, amount, frequency, custom_days, due_day,
            start_date, end_date, next_billing_date, notification_days, auto_generate_invoice,
            payment_method, payment_gateway_id, auto_charge, status, installments, installments_generated,
            apply_late_fee, late_fee_percentage, apply_daily_interest, daily_interest_percentage, notes,
            created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19,
            $20, $21, $22, $23, $24, NOW(), NOW())
        RETURNING ` + scheduleColumns

	status := "success"
	startTime := time.Now()

	row := r.db.QueryRow(ctx, sql,
		s.CustomerID, s.PlanID, s.Title, s.Description, s.Amount, s.Frequency, s.CustomDays, s.DueDay,
		s.StartDate, s.EndDate, s.NextBillingDate, notificationDaysToDB(s.NotificationDays), s.AutoGenerateInvoice,
		s.PaymentMethod, s.PaymentGatewayID, s.AutoCharge, s.Status, s.Installments, s.InstallmentsGenerated,
		s.ApplyLateFee, s.LateFeePercentage, s.ApplyDailyInterest, s.DailyInterestPercentage, s.Notes,
	)
	created, err := scanSchedule(row)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("CreateSchedule", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert billing schedule", "error", err)
		return nil, fmt.Errorf("%w: failed to insert billing schedule: %w", apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Billing schedule created in DB", "schedule_id", created.ID)
	return created, nil
}

func (r *ScheduleRepository) GetScheduleByID(ctx context.Context, scheduleID int64) (*schedule.BillingSchedule, error) {
	sql := `SELECT ` + scheduleColumns + ` FROM billing_schedules WHERE id = $1`

	status := "success"
	startTime := time.Now()

	s, err := scanSchedule(r.db.QueryRow(ctx, sql, scheduleID))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetScheduleByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Billing schedule not found", "schedule_id", scheduleID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get billing schedule by ID", "schedule_id", scheduleID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return s, nil
}

func (r *ScheduleRepository) ListSchedules(ctx context.Context, filter schedule.ListFilter) ([]*schedule.BillingSchedule, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + scheduleColumns + ` FROM billing_schedules`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY next_billing_date ASC, id ASC"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query billing schedules", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

func (r *ScheduleRepository) ListDueScheduleIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	sql := `
        SELECT id
        FROM billing_schedules
        WHERE status = $1 AND auto_generate_invoice = TRUE AND next_billing_date <= $2
        ORDER BY next_billing_date ASC`

	rows, err := r.db.Query(ctx, sql, schedule.StatusActive, asOf)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query due schedule IDs", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan due schedule ID", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		ids = append(ids, id)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating due schedule IDs", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return ids, nil
}

func (r *ScheduleRepository) ListActiveWithNotifications(ctx context.Context) ([]*schedule.BillingSchedule, error) {
	sql := `
        SELECT ` + scheduleColumns + `
        FROM billing_schedules
        WHERE status = $1 AND cardinality(notification_days) > 0
        ORDER BY next_billing_date ASC`

	rows, err := r.db.Query(ctx, sql, schedule.StatusActive)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query schedules with notifications", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	return collectSchedules(rows)
}

const updateScheduleSQL = `
        UPDATE billing_schedules
        SET plan_id = $2, title = $3, description = $4, amount = $5, frequency = $6, custom_days = $7,
            due_day = $8, start_date = $9, end_date = $10, next_billing_date = $11, notification_days = $12,
            auto_generate_invoice = $13, payment_method = $14, payment_gateway_id = $15, auto_charge = $16,
            status = $17, installments = $18, installments_generated = $19, apply_late_fee = $20,
            late_fee_percentage = $21, apply_daily_interest = $22, daily_interest_percentage = $23,
            last_execution_date = $24, last_generated_invoice_id = $25, notes = $26, updated_at = NOW()
        WHERE id = $1`

func updateScheduleArgs(s *schedule.BillingSchedule) []any {
	return []any{
		s.ID, s.PlanID, s.Title, s.Description, s.Amount, s.Frequency, s.CustomDays,
		s.DueDay, s.StartDate, s.EndDate, s.NextBillingDate, notificationDaysToDB(s.NotificationDays),
		s.AutoGenerateInvoice, s.PaymentMethod, s.PaymentGatewayID, s.AutoCharge,
		s.Status, s.Installments, s.InstallmentsGenerated, s.ApplyLateFee,
		s.LateFeePercentage, s.ApplyDailyInterest, s.DailyInterestPercentage,
		s.LastExecutionDate, s.LastGeneratedInvoiceID, s.Notes,
	}
}

func (r *ScheduleRepository) UpdateSchedule(ctx context.Context, s *schedule.BillingSchedule) error {
	status := "success"
	startTime := time.Now()

	cmdTag, err := r.db.Exec(ctx, updateScheduleSQL, updateScheduleArgs(s)...)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("UpdateSchedule", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update billing schedule", "schedule_id", s.ID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Billing schedule not found for update", "schedule_id", s.ID)
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) UpdateScheduleInTx(ctx context.Context, tx pgx.Tx, s *schedule.BillingSchedule) error {
	status := "success"
	startTime := time.Now()

	cmdTag, err := tx.Exec(ctx, updateScheduleSQL, updateScheduleArgs(s)...)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("UpdateScheduleInTx", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update billing schedule in transaction", "schedule_id", s.ID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		r.logger.WarnContext(ctx, "Billing schedule not found for update", "schedule_id", s.ID)
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ScheduleRepository) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	sql := `DELETE FROM billing_schedules WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, sql, scheduleID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to delete billing schedule", "schedule_id", scheduleID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	r.logger.InfoContext(ctx, "Billing schedule deleted from DB", "schedule_id", scheduleID)
	return nil
}

func (r *ScheduleRepository) FindScheduleByIDForUpdate(ctx context.Context, tx pgx.Tx, scheduleID int64) (*schedule.BillingSchedule, error) {
	sql := `SELECT ` + scheduleColumns + ` FROM billing_schedules WHERE id = $1 FOR UPDATE`

	s, err := scanSchedule(tx.QueryRow(ctx, sql, scheduleID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.InfoContext(ctx, "Billing schedule not found for locking", "schedule_id", scheduleID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to lock billing schedule row", "schedule_id", scheduleID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return s, nil
}

func (r *ScheduleRepository) AdvanceScheduleInTx(ctx context.Context, tx pgx.Tx, s *schedule.BillingSchedule) error {
	sql := `
        UPDATE billing_schedules
        SET next_billing_date = $2, installments_generated = $3, status = $4,
            last_execution_date = $5, last_generated_invoice_id = $6, updated_at = NOW()
        WHERE id = $1`

	cmdTag, err := tx.Exec(ctx, sql,
		s.ID, s.NextBillingDate, s.InstallmentsGenerated, s.Status,
		s.LastExecutionDate, s.LastGeneratedInvoiceID,
	)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to advance billing schedule", "schedule_id", s.ID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanSchedule(row pgx.Row) (*schedule.BillingSchedule, error) {
	var (
		s    schedule.BillingSchedule
		days []int32
	)
	err := row.Scan(
		&s.ID, &s.CustomerID, &s.PlanID, &s.Title, &s.Description, &s.Amount, &s.Frequency, &s.CustomDays,
		&s.DueDay, &s.StartDate, &s.EndDate, &s.NextBillingDate, &days, &s.AutoGenerateInvoice,
		&s.PaymentMethod, &s.PaymentGatewayID, &s.AutoCharge, &s.Status, &s.Installments, &s.InstallmentsGenerated,
		&s.ApplyLateFee, &s.LateFeePercentage, &s.ApplyDailyInterest, &s.DailyInterestPercentage,
		&s.LastExecutionDate, &s.LastGeneratedInvoiceID, &s.Notes, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.NotificationDays = notificationDaysFromDB(days)
	return &s, nil
}

func collectSchedules(rows pgx.Rows) ([]*schedule.BillingSchedule, error) {
	schedules := make([]*schedule.BillingSchedule, 0)
	for rows.Next() {
		s, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		schedules = append(schedules, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return schedules, nil
}

func notificationDaysToDB(days schedule.NotificationDays) []int32 {
	out := make([]int32, len(days))
	for i, d := range days {
		out[i] = int32(d)
	}
	return out
}

func notificationDaysFromDB(days []int32) schedule.NotificationDays {
	out := make([]int, len(days))
	for i, d := range days {
		out[i] = int(d)
	}
	return schedule.NewNotificationDays(out...)
}
