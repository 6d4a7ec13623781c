package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

const invoiceColumns = `id, customer_id, billing_schedule_id, amount, due_date, status, payment_method,
        payment_gateway_id, description, payment_date, transaction_id, created_at, updated_at`

type InvoiceRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewInvoiceRepository(db DBPool, logger *slog.Logger) *InvoiceRepository {
	return &InvoiceRepository{db: db, logger: logger.With("component", "InvoiceRepository")}
}

func (r *InvoiceRepository) CreateInvoiceInTx(ctx context.Context, tx pgx.Tx, inv *invoice.Invoice) (*invoice.Invoice, error) {
	sql := `
        INSERT INTO invoices (
            customer_id, billing_schedule_id, amount, due_date, status, payment_method,
            payment_gateway_id, description, created_at, updated_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
        RETURNING ` + invoiceColumns

	status := "success"
	startTime := time.Now()

	created, err := scanInvoice(tx.QueryRow(ctx, sql,
		inv.CustomerID, inv.BillingScheduleID, inv.Amount, inv.DueDate, inv.Status,
		inv.PaymentMethod, inv.PaymentGatewayID, inv.Description,
	))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("CreateInvoice", status, time.Since(startTime))

	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to insert invoice", "error", err)
		return nil, fmt.Errorf("%w: failed to insert invoice: %w", apperrors.ErrDatabase, err)
	}
	r.logger.InfoContext(ctx, "Invoice created in DB", "invoice_id", created.ID)
	return created, nil
}

func (r *InvoiceRepository) ExistsForCycleInTx(ctx context.Context, tx pgx.Tx, scheduleID int64, dueDate time.Time) (bool, error) {
	sql := `
        SELECT EXISTS (
            SELECT 1 FROM invoices
            WHERE billing_schedule_id = $1 AND due_date = $2 AND status != $3
        )`

	var exists bool
	if err := tx.QueryRow(ctx, sql, scheduleID, dueDate, invoice.StatusCancelled).Scan(&exists); err != nil {
		r.logger.ErrorContext(ctx, "Failed cycle existence check", "schedule_id", scheduleID, "error", err)
		return false, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return exists, nil
}

func (r *InvoiceRepository) GetInvoiceByID(ctx context.Context, invoiceID int64) (*invoice.Invoice, error) {
	sql := `SELECT ` + invoiceColumns + ` FROM invoices WHERE id = $1`

	status := "success"
	startTime := time.Now()

	inv, err := scanInvoice(r.db.QueryRow(ctx, sql, invoiceID))
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("GetInvoiceByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.WarnContext(ctx, "Invoice not found", "invoice_id", invoiceID)
			return nil, apperrors.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to get invoice by ID", "invoice_id", invoiceID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return inv, nil
}

func (r *InvoiceRepository) ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	var (
		conds []string
		args  []any
	)
	if filter.CustomerID > 0 {
		args = append(args, filter.CustomerID)
		conds = append(conds, fmt.Sprintf("customer_id = $%d", len(args)))
	}
	if filter.ScheduleID > 0 {
		args = append(args, filter.ScheduleID)
		conds = append(conds, fmt.Sprintf("billing_schedule_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	sql := `SELECT ` + invoiceColumns + ` FROM invoices`
	if len(conds) > 0 {
		sql += " WHERE " + strings.Join(conds, " AND ")
	}
	sql += " ORDER BY due_date DESC, id DESC"

	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query invoices", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	invoices := make([]*invoice.Invoice, 0)
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan invoice row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		invoices = append(invoices, inv)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating invoice rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return invoices, nil
}

func (r *InvoiceRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoice.InvoiceStatus, paymentDate *time.Time, transactionID *string) error {
	sql := `
        UPDATE invoices
        SET status = $2, payment_date = $3, transaction_id = $4, updated_at = NOW()
        WHERE id = $1`

	cmdTag, err := r.db.Exec(ctx, sql, invoiceID, status, paymentDate, transactionID)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to update invoice status", "invoice_id", invoiceID, "error", err)
		return fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	if cmdTag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *InvoiceRepository) MarkPendingOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	sql := `
        UPDATE invoices
        SET status = $1, updated_at = NOW()
        WHERE status = $2 AND due_date < $3`

	startTime := time.Now()
	cmdTag, err := r.db.Exec(ctx, sql, invoice.StatusOverdue, invoice.StatusPending, asOf)
	if err != nil {
		monitoring.RecordDBQuery("MarkPendingOverdue", "error", time.Since(startTime))
		r.logger.ErrorContext(ctx, "Failed to mark invoices overdue", "error", err)
		return 0, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	monitoring.RecordDBQuery("MarkPendingOverdue", "success", time.Since(startTime))
	return cmdTag.RowsAffected(), nil
}

func scanInvoice(row pgx.Row) (*invoice.Invoice, error) {
	var inv invoice.Invoice
	err := row.Scan(
		&inv.ID, &inv.CustomerID, &inv.BillingScheduleID, &inv.Amount, &inv.DueDate, &inv.Status,
		&inv.PaymentMethod, &inv.PaymentGatewayID, &inv.Description, &inv.PaymentDate, &inv.TransactionID,
		&inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
