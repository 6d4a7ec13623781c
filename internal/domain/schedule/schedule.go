package schedule

import (
	"fmt"
	"time"

	"recurring-billing/internal/pkg/apperrors"

	"github.com/shopspring/decimal"
)

const (
	MinDueDay = 1
	MaxDueDay = 31
)

var (
	MaxLateFeePercentage       = decimal.NewFromInt(20)
	MaxDailyInterestPercentage = decimal.NewFromInt(1)
)

type Frequency string

const (
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyBimonthly  Frequency = "BIMONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiannual Frequency = "SEMIANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
	FrequencyCustom     Frequency = "CUSTOM"
)

func (f Frequency) Valid() bool {
	switch f {
	case FrequencyMonthly, FrequencyBimonthly, FrequencyQuarterly,
		FrequencySemiannual, FrequencyAnnual, FrequencyCustom:
		return true
	}
	return false
}

// Months reports the calendar-month step for the frequency. Zero for CUSTOM,
// which advances by a day count instead.
func (f Frequency) Months() int {
	switch f {
	case FrequencyMonthly:
		return 1
	case FrequencyBimonthly:
		return 2
	case FrequencyQuarterly:
		return 3
	case FrequencySemiannual:
		return 6
	case FrequencyAnnual:
		return 12
	}
	return 0
}

type ScheduleStatus string

const (
	StatusActive    ScheduleStatus = "ACTIVE"
	StatusPaused    ScheduleStatus = "PAUSED"
	StatusCancelled ScheduleStatus = "CANCELLED"
	StatusCompleted ScheduleStatus = "COMPLETED"
)

// Terminal reports whether no further status transition is allowed.
func (s ScheduleStatus) Terminal() bool {
	return s == StatusCancelled || s == StatusCompleted
}

// CanTransitionTo captures the manual state machine. COMPLETED is never a
// valid manual target: it is reached only by the invoice generator when the
// final installment is produced.
func (s ScheduleStatus) CanTransitionTo(target ScheduleStatus) bool {
	if s.Terminal() {
		return false
	}
	switch s {
	case StatusActive:
		return target == StatusPaused || target == StatusCancelled
	case StatusPaused:
		return target == StatusActive || target == StatusCancelled
	}
	return false
}

// PaymentMethodDefault marks a schedule that defers to the customer's stored
// default payment method at generation time.
const PaymentMethodDefault = "default"

type BillingSchedule struct {
	ID                      int64
	CustomerID              int64
	PlanID                  *int64
	Title                   string
	Description             string
	Amount                  decimal.Decimal
	Frequency               Frequency
	CustomDays              int
	DueDay                  int
	StartDate               time.Time
	EndDate                 *time.Time
	NextBillingDate         time.Time
	NotificationDays        NotificationDays
	AutoGenerateInvoice     bool
	PaymentMethod           string
	PaymentGatewayID        *int64
	AutoCharge              bool
	Status                  ScheduleStatus
	Installments            *int
	InstallmentsGenerated   int
	ApplyLateFee            bool
	LateFeePercentage       decimal.Decimal
	ApplyDailyInterest      bool
	DailyInterestPercentage decimal.Decimal
	LastExecutionDate       *time.Time
	LastGeneratedInvoiceID  *int64
	Notes                   string
	CreatedAt               time.Time
	UpdatedAt               time.Time
}

// NewBillingSchedule builds an active schedule and computes the first
// next_billing_date from the start date. It never back-dates: the initial
// cycle lands one full period after the start.
func NewBillingSchedule(customerID int64, title string, amount decimal.Decimal, freq Frequency, customDays, dueDay int, startDate time.Time) (*BillingSchedule, error) {
	if startDate.IsZero() {
		startDate = Today()
	}
	s := &BillingSchedule{
		CustomerID:       customerID,
		Title:            title,
		Amount:           amount,
		Frequency:        freq,
		CustomDays:       customDays,
		DueDay:           dueDay,
		StartDate:        DateOnly(startDate),
		PaymentMethod:    PaymentMethodDefault,
		Status:           StatusActive,
		NotificationDays: NotificationDays{},
	}
	s.NextBillingDate = NextBillingDate(s.StartDate, s.DueDay, s.Frequency, s.CustomDays)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate enforces the schedule invariants. It is called at every input
// boundary before any state is written.
func (s *BillingSchedule) Validate() error {
	if s.CustomerID <= 0 {
		return apperrors.NewValidationError("customerId", "must be a positive identifier")
	}
	if !s.Amount.IsPositive() {
		return apperrors.NewValidationError("amount", "must be greater than zero")
	}
	if !s.Frequency.Valid() {
		return apperrors.NewValidationError("frequency", fmt.Sprintf("unknown frequency %q", s.Frequency))
	}
	if s.Frequency == FrequencyCustom && s.CustomDays < 1 {
		return apperrors.NewValidationError("customDays", "must be at least 1 when frequency is CUSTOM")
	}
	if s.DueDay < MinDueDay || s.DueDay > MaxDueDay {
		return apperrors.NewValidationError("dueDay", fmt.Sprintf("must be between %d and %d", MinDueDay, MaxDueDay))
	}
	if s.StartDate.IsZero() {
		return apperrors.NewValidationError("startDate", "is required")
	}
	if s.EndDate != nil && s.EndDate.Before(s.StartDate) {
		return apperrors.NewValidationError("endDate", "cannot be before startDate")
	}
	if !s.NextBillingDate.IsZero() && s.NextBillingDate.Before(s.StartDate) {
		return apperrors.NewValidationError("nextBillingDate", "cannot be before startDate")
	}
	if s.Installments != nil {
		if *s.Installments <= 0 {
			return apperrors.NewValidationError("installments", "must be a positive count")
		}
		if s.InstallmentsGenerated > *s.Installments {
			return apperrors.NewValidationError("installmentsGenerated", "cannot exceed installments")
		}
	}
	if s.InstallmentsGenerated < 0 {
		return apperrors.NewValidationError("installmentsGenerated", "cannot be negative")
	}
	if s.ApplyLateFee {
		if !s.LateFeePercentage.IsPositive() || s.LateFeePercentage.GreaterThan(MaxLateFeePercentage) {
			return apperrors.NewValidationError("lateFeePercentage", "must be greater than 0 and at most 20")
		}
	}
	if s.ApplyDailyInterest {
		if !s.DailyInterestPercentage.IsPositive() || s.DailyInterestPercentage.GreaterThan(MaxDailyInterestPercentage) {
			return apperrors.NewValidationError("dailyInterestPercentage", "must be greater than 0 and at most 1")
		}
	}
	for _, d := range s.NotificationDays {
		if d < 0 {
			return apperrors.NewValidationError("notificationDays", "offsets cannot be negative")
		}
	}
	return nil
}

// InstallmentsComplete reports whether a fixed-count schedule has generated
// its final installment. Open-ended schedules never complete.
func (s *BillingSchedule) InstallmentsComplete() bool {
	return s.Installments != nil && s.InstallmentsGenerated >= *s.Installments
}
