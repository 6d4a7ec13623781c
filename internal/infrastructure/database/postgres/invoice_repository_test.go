package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var invoiceColumnNames = []string{
	"id", "customer_id", "billing_schedule_id", "amount", "due_date", "status", "payment_method",
	"payment_gateway_id", "description", "payment_date", "transaction_id", "created_at", "updated_at",
}

func sampleInvoiceRow() *pgxmock.Rows {
	now := time.Date(2024, time.March, 1, 10, 0, 0, 0, time.UTC)
	scheduleID := int64(42)
	return pgxmock.NewRows(invoiceColumnNames).AddRow(
		int64(100), int64(7), &scheduleID, decimal.NewFromInt(50), time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC), invoice.StatusPending, "card_123",
		nil, "Gym membership", nil, nil, now, now,
	)
}

func TestInvoiceRepositoryGetInvoiceByID(t *testing.T) {
	ctx := context.Background()

	t.Run("scans a full invoice row", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectQuery(`FROM invoices WHERE id = \$1`).
			WithArgs(int64(100)).
			WillReturnRows(sampleInvoiceRow())

		inv, err := repo.GetInvoiceByID(ctx, 100)
		require.NoError(t, err)
		assert.Equal(t, int64(100), inv.ID)
		require.NotNil(t, inv.BillingScheduleID)
		assert.Equal(t, int64(42), *inv.BillingScheduleID)
		assert.Equal(t, invoice.StatusPending, inv.Status)
		assert.Nil(t, inv.PaymentDate)
	})

	t.Run("maps no rows to not found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectQuery(`FROM invoices WHERE id = \$1`).
			WithArgs(int64(999)).
			WillReturnRows(pgxmock.NewRows(invoiceColumnNames))

		_, err = repo.GetInvoiceByID(ctx, 999)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestInvoiceRepositoryExistsForCycleInTx(t *testing.T) {
	ctx := context.Background()
	dueDate := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	t.Run("excludes cancelled invoices from the check", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(42), dueDate, invoice.StatusCancelled).
			WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
		mockPool.ExpectRollback()

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		exists, err := repo.ExistsForCycleInTx(ctx, tx, 42, dueDate)
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("wraps query failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectBegin()
		mockPool.ExpectQuery(`SELECT EXISTS`).
			WithArgs(int64(42), dueDate, invoice.StatusCancelled).
			WillReturnError(errors.New("deadlock detected"))
		mockPool.ExpectRollback()

		tx, err := mockPool.Begin(ctx)
		require.NoError(t, err)
		defer tx.Rollback(ctx)

		_, err = repo.ExistsForCycleInTx(ctx, tx, 42, dueDate)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}

func TestInvoiceRepositoryUpdateInvoiceStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("writes status with payment details", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		paidAt := time.Date(2024, time.March, 10, 0, 0, 0, 0, time.UTC)
		txID := "txn_abc"
		mockPool.ExpectExec(`UPDATE invoices`).
			WithArgs(int64(100), invoice.StatusPaid, &paidAt, &txID).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		assert.NoError(t, repo.UpdateInvoiceStatus(ctx, 100, invoice.StatusPaid, &paidAt, &txID))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("zero affected rows means not found", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectExec(`UPDATE invoices`).
			WithArgs(anyArgs(4)...).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		err = repo.UpdateInvoiceStatus(ctx, 999, invoice.StatusCancelled, nil, nil)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})
}

func TestInvoiceRepositoryMarkPendingOverdue(t *testing.T) {
	ctx := context.Background()
	asOf := time.Date(2024, time.March, 15, 0, 0, 0, 0, time.UTC)

	t.Run("returns the number of flipped invoices", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectExec(`UPDATE invoices`).
			WithArgs(invoice.StatusOverdue, invoice.StatusPending, asOf).
			WillReturnResult(pgxmock.NewResult("UPDATE", 5))

		n, err := repo.MarkPendingOverdue(ctx, asOf)
		require.NoError(t, err)
		assert.Equal(t, int64(5), n)
	})

	t.Run("wraps exec failure", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectExec(`UPDATE invoices`).
			WillReturnError(errors.New("connection reset"))

		_, err = repo.MarkPendingOverdue(ctx, asOf)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
	})
}

func TestInvoiceRepositoryListInvoices(t *testing.T) {
	ctx := context.Background()

	t.Run("applies filters in order", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectQuery(`FROM invoices WHERE customer_id = \$1 AND status = \$2`).
			WithArgs(int64(7), invoice.StatusPending).
			WillReturnRows(sampleInvoiceRow())

		invoices, err := repo.ListInvoices(ctx, invoice.ListFilter{CustomerID: 7, Status: invoice.StatusPending})
		require.NoError(t, err)
		require.Len(t, invoices, 1)
		assert.Equal(t, int64(100), invoices[0].ID)
	})

	t.Run("no filters lists everything", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()
		repo := NewInvoiceRepository(mockPool, testRepoLogger())

		mockPool.ExpectQuery(`FROM invoices ORDER BY due_date DESC`).
			WillReturnRows(pgxmock.NewRows(invoiceColumnNames))

		invoices, err := repo.ListInvoices(ctx, invoice.ListFilter{})
		require.NoError(t, err)
		assert.Empty(t, invoices)
	})
}
