package invoice

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
)

// ListFilter narrows ListInvoices. Zero values mean "no constraint".
type ListFilter struct {
	CustomerID int64
	ScheduleID int64
	Status     InvoiceStatus
}

type Repository interface {
	// CreateInvoiceInTx inserts the invoice inside the caller's transaction so
	// the insert commits or rolls back together with the schedule advance.
	CreateInvoiceInTx(ctx context.Context, tx pgx.Tx, inv *Invoice) (*Invoice, error)

	// ExistsForCycleInTx is the idempotency guard: reports whether an invoice
	// already exists for (schedule, due date), read under the schedule row lock.
	// Cancelled invoices do not count, so a cycle whose only invoice was
	// cancelled can be generated again.
	ExistsForCycleInTx(ctx context.Context, tx pgx.Tx, scheduleID int64, dueDate time.Time) (bool, error)

	GetInvoiceByID(ctx context.Context, invoiceID int64) (*Invoice, error)

	ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error)

	// UpdateInvoiceStatus is the hook for the external payment-recording
	// collaborator; the engine itself only uses it via the overdue sweep.
	UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus, paymentDate *time.Time, transactionID *string) error

	// MarkPendingOverdue flips pending invoices past due as of the given date
	// and returns how many rows moved.
	MarkPendingOverdue(ctx context.Context, asOf time.Time) (int64, error)
}
