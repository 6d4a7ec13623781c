package invoice

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/domain/schedule"
	"recurring-billing/internal/event"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// fakeTx satisfies pgx.Tx through interface embedding; repository calls are
// mocked so none of its methods are ever invoked.
type fakeTx struct {
	pgx.Tx
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

type MockInvoiceRepository struct {
	mock.Mock
}

func (m *MockInvoiceRepository) CreateInvoiceInTx(ctx context.Context, tx pgx.Tx, inv *Invoice) (*Invoice, error) {
	args := m.Called(ctx, tx, inv)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ExistsForCycleInTx(ctx context.Context, tx pgx.Tx, scheduleID int64, dueDate time.Time) (bool, error) {
	args := m.Called(ctx, tx, scheduleID, dueDate)
	return args.Bool(0), args.Error(1)
}

func (m *MockInvoiceRepository) GetInvoiceByID(ctx context.Context, invoiceID int64) (*Invoice, error) {
	args := m.Called(ctx, invoiceID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) ListInvoices(ctx context.Context, filter ListFilter) ([]*Invoice, error) {
	args := m.Called(ctx, filter)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Invoice), args.Error(1)
}

func (m *MockInvoiceRepository) UpdateInvoiceStatus(ctx context.Context, invoiceID int64, status InvoiceStatus, paymentDate *time.Time, transactionID *string) error {
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
	_ Repository               = (*MockInvoiceRepository)(nil)
	_ customer.CustomerService = (*MockCustomerService)(nil)
	_ event.EventPublisher     = (*MockEventPublisher)(nil)
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func activeSchedule() *schedule.BillingSchedule {
	return &schedule.BillingSchedule{
		ID:              42,
		CustomerID:      7,
		Title:           "Gym membership",
		Amount:          decimal.NewFromInt(50),
		Frequency:       schedule.FrequencyMonthly,
		DueDay:          15,
		StartDate:       date(2024, time.January, 15),
		NextBillingDate: date(2024, time.March, 15),
		PaymentMethod:   schedule.PaymentMethodDefault,
		Status:          schedule.StatusActive,
	}
}

type generatorFixture struct {
	scheduleRepo *MockScheduleRepository
	invoiceRepo  *MockInvoiceRepository
	customers    *MockCustomerService
	pub          *MockEventPublisher
	gen          Generator
	tx           *fakeTx
}

func newGeneratorFixture(t *testing.T) *generatorFixture {
	t.Helper()
	f := &generatorFixture{
		scheduleRepo: new(MockScheduleRepository),
		invoiceRepo:  new(MockInvoiceRepository),
		customers:    new(MockCustomerService),
		pub:          new(MockEventPublisher),
		tx:           &fakeTx{},
	}
	f.gen = NewGenerator(f.scheduleRepo, f.invoiceRepo, f.customers, f.pub, testLogger())
	return f
}

func TestGenerate(t *testing.T) {
	ctx := context.Background()
	asOf := date(2024, time.March, 15)

	t.Run("generates one invoice and advances the schedule", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), date(2024, time.March, 15)).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.MatchedBy(func(inv *Invoice) bool {
			return inv.Status == StatusPending &&
				inv.PaymentMethod == "card_123" &&
				inv.DueDate.Equal(date(2024, time.March, 15)) &&
				inv.Amount.Equal(decimal.NewFromInt(50))
		})).Return(&Invoice{ID: 100, CustomerID: 7, Amount: decimal.NewFromInt(50), DueDate: date(2024, time.March, 15), Status: StatusPending, PaymentMethod: "card_123"}, nil).Once()
		f.scheduleRepo.On("AdvanceScheduleInTx", ctx, f.tx, mock.MatchedBy(func(s *schedule.BillingSchedule) bool {
			return s.NextBillingDate.Equal(date(2024, time.April, 15)) &&
				s.LastGeneratedInvoiceID != nil && *s.LastGeneratedInvoiceID == 100 &&
				s.Status == schedule.StatusActive
		})).Return(nil).Once()
		f.scheduleRepo.On("CommitTx", ctx, f.tx).Return(nil).Once()
		f.pub.On("PublishInvoiceGenerated", ctx, mock.Anything).Return(nil).Once()

		inv, err := f.gen.Generate(ctx, 42, asOf)
		require.NoError(t, err)
		assert.Equal(t, int64(100), inv.ID)
		f.scheduleRepo.AssertExpectations(t)
		f.invoiceRepo.AssertExpectations(t)
		f.pub.AssertExpectations(t)
	})

	t.Run("second generation for the same cycle is rejected and rolled back", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(true, nil).Once()
		f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		assert.ErrorIs(t, err, apperrors.ErrDuplicateGeneration)
		f.invoiceRepo.AssertNotCalled(t, "CreateInvoiceInTx", mock.Anything, mock.Anything, mock.Anything)
		f.scheduleRepo.AssertNotCalled(t, "AdvanceScheduleInTx", mock.Anything, mock.Anything, mock.Anything)
		f.scheduleRepo.AssertExpectations(t)
	})

	t.Run("refuses non-active schedules", func(t *testing.T) {
		for _, status := range []schedule.ScheduleStatus{schedule.StatusPaused, schedule.StatusCancelled, schedule.StatusCompleted} {
			f := newGeneratorFixture(t)
			sched := activeSchedule()
			sched.Status = status

			f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
			f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
			f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

			_, err := f.gen.Generate(ctx, 42, asOf)
			assert.ErrorIs(t, err, apperrors.ErrScheduleNotActive, "status %s", status)
		}
	})

	t.Run("missing schedule maps to not found", func(t *testing.T) {
		f := newGeneratorFixture(t)

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(nil, pgx.ErrNoRows).Once()
		f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		assert.ErrorIs(t, err, apperrors.ErrNotFound)
	})

	t.Run("insert failure rolls back without committing", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.Anything).Return(nil, errors.New("insert failed")).Once()
		f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		f.scheduleRepo.AssertNotCalled(t, "CommitTx", mock.Anything, mock.Anything)
		f.scheduleRepo.AssertExpectations(t)
	})

	t.Run("panic mid-generation counts as a failure and rolls back", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.Anything).
			Run(func(mock.Arguments) { panic("connection state corrupted") }).
			Return(nil, nil).Once()
		f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

		failuresBefore := testutil.ToFloat64(monitoring.Business.GenerationTotal.WithLabelValues("failure_internal"))
		successesBefore := testutil.ToFloat64(monitoring.Business.GenerationTotal.WithLabelValues("success"))

		assert.Panics(t, func() { _, _ = f.gen.Generate(ctx, 42, asOf) })

		assert.Equal(t, failuresBefore+1, testutil.ToFloat64(monitoring.Business.GenerationTotal.WithLabelValues("failure_internal")))
		assert.Equal(t, successesBefore, testutil.ToFloat64(monitoring.Business.GenerationTotal.WithLabelValues("success")))
		f.scheduleRepo.AssertExpectations(t)
	})

	t.Run("schedule advance failure rolls the invoice back too", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.Anything).Return(&Invoice{ID: 100}, nil).Once()
		f.scheduleRepo.On("AdvanceScheduleInTx", ctx, f.tx, mock.Anything).Return(errors.New("update failed")).Once()
		f.scheduleRepo.On("RollbackTx", ctx, f.tx).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		assert.ErrorIs(t, err, apperrors.ErrDatabase)
		f.scheduleRepo.AssertNotCalled(t, "CommitTx", mock.Anything, mock.Anything)
	})

	t.Run("final installment completes the schedule", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()
		three := 3
		sched.Installments = &three
		sched.InstallmentsGenerated = 2

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.MatchedBy(func(inv *Invoice) bool {
			return inv.Description == "Gym membership (installment 3/3)"
		})).Return(&Invoice{ID: 101}, nil).Once()
		f.scheduleRepo.On("AdvanceScheduleInTx", ctx, f.tx, mock.MatchedBy(func(s *schedule.BillingSchedule) bool {
			return s.Status == schedule.StatusCompleted && s.InstallmentsGenerated == 3
		})).Return(nil).Once()
		f.scheduleRepo.On("CommitTx", ctx, f.tx).Return(nil).Once()
		f.pub.On("PublishInvoiceGenerated", ctx, mock.Anything).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		require.NoError(t, err)
		f.scheduleRepo.AssertExpectations(t)
	})

	t.Run("cycle past the end date completes the schedule", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()
		end := date(2024, time.March, 31)
		sched.EndDate = &end

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.Anything).Return(&Invoice{ID: 102}, nil).Once()
		f.scheduleRepo.On("AdvanceScheduleInTx", ctx, f.tx, mock.MatchedBy(func(s *schedule.BillingSchedule) bool {
			return s.Status == schedule.StatusCompleted
		})).Return(nil).Once()
		f.scheduleRepo.On("CommitTx", ctx, f.tx).Return(nil).Once()
		f.pub.On("PublishInvoiceGenerated", ctx, mock.Anything).Return(nil).Once()

		_, err := f.gen.Generate(ctx, 42, asOf)
		require.NoError(t, err)
	})

	t.Run("publish failure does not fail generation", func(t *testing.T) {
		f := newGeneratorFixture(t)
		sched := activeSchedule()

		f.scheduleRepo.On("BeginTx", ctx).Return(f.tx, nil).Once()
		f.scheduleRepo.On("FindScheduleByIDForUpdate", ctx, f.tx, int64(42)).Return(sched, nil).Once()
		f.invoiceRepo.On("ExistsForCycleInTx", ctx, f.tx, int64(42), sched.NextBillingDate).Return(false, nil).Once()
		f.customers.On("ResolvePaymentMethod", ctx, int64(7), schedule.PaymentMethodDefault).Return("card_123", nil).Once()
		f.invoiceRepo.On("CreateInvoiceInTx", ctx, f.tx, mock.Anything).Return(&Invoice{ID: 103}, nil).Once()
		f.scheduleRepo.On("AdvanceScheduleInTx", ctx, f.tx, mock.Anything).Return(nil).Once()
		f.scheduleRepo.On("CommitTx", ctx, f.tx).Return(nil).Once()
		f.pub.On("PublishInvoiceGenerated", ctx, mock.Anything).Return(errors.New("broker unavailable")).Once()

		inv, err := f.gen.Generate(ctx, 42, asOf)
		require.NoError(t, err)
		assert.Equal(t, int64(103), inv.ID)
	})
}
