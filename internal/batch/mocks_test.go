package batch

import (
	"context"
	"io"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/domain/invoice"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/event"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/mock"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type MockScheduleRepository struct {
	mock.Mock
}

func (m *MockScheduleRepository) CreateSchedule(ctx context.Context, s *schedule.BillingSchedule) (*schedule.BillingSchedule, error) {
	args := m.Called(ctx, s)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.BillingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) GetScheduleByID(ctx context.Context, scheduleID int64) (*schedule.BillingSchedule, error) {
	args := m.Called(ctx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.BillingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) ListSchedules(ctx context.Context, filter schedule.ListFilter) ([]*schedule.BillingSchedule, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.BillingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) ListDueScheduleIDs(ctx context.Context, asOf time.Time) ([]int64, error) {
	args := m.Called(ctx, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockScheduleRepository) ListActiveWithNotifications(ctx context.Context) ([]*schedule.BillingSchedule, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*schedule.BillingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) UpdateSchedule(ctx context.Context, s *schedule.BillingSchedule) error {
	return m.Called(ctx, s).Error(0)
}

func (m *MockScheduleRepository) UpdateScheduleInTx(ctx context.Context, tx pgx.Tx, s *schedule.BillingSchedule) error {
	return m.Called(ctx, tx, s).Error(0)
}

func (m *MockScheduleRepository) DeleteSchedule(ctx context.Context, scheduleID int64) error {
	return m.Called(ctx, scheduleID).Error(0)
}

func (m *MockScheduleRepository) FindScheduleByIDForUpdate(ctx context.Context, tx pgx.Tx, scheduleID int64) (*schedule.BillingSchedule, error) {
	args := m.Called(ctx, tx, scheduleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*schedule.BillingSchedule), args.Error(1)
}

func (m *MockScheduleRepository) AdvanceScheduleInTx(ctx context.Context, tx pgx.Tx, s *schedule.BillingSchedule) error {
	return m.Called(ctx, tx, s).Error(0)
}

func (m *MockScheduleRepository) BeginTx(ctx context.Context) (pgx.Tx, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(pgx.Tx), args.Error(1)
}

func (m *MockScheduleRepository) CommitTx(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

func (m *MockScheduleRepository) RollbackTx(ctx context.Context, tx pgx.Tx) error {
	return m.Called(ctx, tx).Error(0)
}

type MockGenerator struct {
	mock.Mock
}

func (m *MockGenerator) Generate(ctx context.Context, scheduleID int64, asOf time.Time) (*invoice.Invoice, error) {
	args := m.Called(ctx, scheduleID, asOf)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) CreateInvoiceInTx(ctx context.Context, tx pgx.Tx, inv *invoice.Invoice) (*invoice.Invoice, error) {
	args := m.Called(ctx, tx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsForCycleInTx(ctx context.Context, tx pgx.Tx, scheduleID int64, dueDate time.Time) (bool, error) {
	args := m.Called(ctx, tx, scheduleID, dueDate)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) GetInvoiceByID(ctx context.Context, invoiceID int64) (*invoice.Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListInvoices(ctx context.Context, filter invoice.ListFilter) ([]*invoice.Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*invoice.Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status invoice.InvoiceStatus, paymentDate *time.Time, transactionID *string) error {
	return m.Called(ctx, invoiceID, status, paymentDate, transactionID).Error(0)
}

func (m *MockInvoiceRepository) MarkPendingOverdue(ctx context.Context, asOf time.Time) (int64, error) {
	args := m.Called(ctx, asOf)
	return args.Get(0).(int64), args.Error(1)
}

type MockCustomerService struct {
	mock.Mock
}

func (m *MockCustomerService) GetCustomer(ctx context.Context, customerID int64) (*customer.Customer, error) {
	args := m.Called(ctx, customerID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Customer), args.Error(1)
}

func (m *MockCustomerService) ListActiveCustomers(ctx context.Context) ([]*customer.Customer, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*customer.Customer), args.Error(1)
}

func (m *MockCustomerService) GetPlan(ctx context.Context, planID int64) (*customer.Plan, error) {
	args := m.Called(ctx, planID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*customer.Plan), args.Error(1)
}

func (m *MockCustomerService) ResolvePaymentMethod(ctx context.Context, customerID int64, scheduleMethod string) (string, error) {
	args := m.Called(ctx, customerID, scheduleMethod)
	return args.String(0), args.Error(1)
}

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishInvoiceGenerated(ctx context.Context, e event.InvoiceGeneratedEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockEventPublisher) PublishScheduleStatusChanged(ctx context.Context, e event.ScheduleStatusChangedEvent) error {
	return m.Called(ctx, e).Error(0)
}

func (m *MockEventPublisher) PublishPaymentReminder(ctx context.Context, e event.PaymentReminderEvent) error {
	return m.Called(ctx, e).Error(0)
}

var (
	_ schedule.Repository      = (*MockScheduleRepository)(nil)
	_ invoice.Generator        = (*MockGenerator)(nil)
	_ invoice.Repository       = (*MockInvoiceRepository)(nil)
	_ customer.CustomerService = (*MockCustomerService)(nil)
	_ event.EventPublisher     = (*MockEventPublisher)(nil)
)
