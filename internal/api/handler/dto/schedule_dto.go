package dto

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"recurring-billing/internal/domain/schedule"

	"github.com/shopspring/decimal"
)

var validFrequencies = map[string]schedule.Frequency{
	"MONTHLY":    schedule.FrequencyMonthly,
	"BIMONTHLY":  schedule.FrequencyBimonthly,
	"QUARTERLY":  schedule.FrequencyQuarterly,
	"SEMIANNUAL": schedule.FrequencySemiannual,
	"ANNUAL":     schedule.FrequencyAnnual,
	"CUSTOM":     schedule.FrequencyCustom,
}

type CreateScheduleRequest struct {
	CustomerID              int64   `json:"customerId"`
	PlanID                  *int64  `json:"planId,omitempty"`
	Title                   string  `json:"title"`
	Description             string  `json:"description,omitempty"`
	Amount                  string  `json:"amount,omitempty"`
	Frequency               string  `json:"frequency"`
	CustomDays              int     `json:"customDays,omitempty"`
	DueDay                  int     `json:"dueDay"`
	StartDate               string  `json:"startDate"`
	EndDate                 *string `json:"endDate,omitempty"`
	NotificationDays        []int   `json:"notificationDays,omitempty"`
	AutoGenerateInvoice     *bool   `json:"autoGenerateInvoice,omitempty"`
	PaymentMethod           string  `json:"paymentMethod,omitempty"`
	PaymentGatewayID        *int64  `json:"paymentGatewayId,omitempty"`
	AutoCharge              bool    `json:"autoCharge,omitempty"`
	Installments            *int    `json:"installments,omitempty"`
	ApplyLateFee            bool    `json:"applyLateFee,omitempty"`
	LateFeePercentage       float64 `json:"lateFeePercentage,omitempty"`
	ApplyDailyInterest      bool    `json:"applyDailyInterest,omitempty"`
	DailyInterestPercentage float64 `json:"dailyInterestPercentage,omitempty"`
	Notes                   string  `json:"notes,omitempty"`
}

func (r *CreateScheduleRequest) Validate() error {
	if r.CustomerID <= 0 {
		return fmt.Errorf("customerId must be a positive number")
	}
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("title cannot be empty")
	}
	if _, ok := validFrequencies[strings.ToUpper(r.Frequency)]; !ok {
		return fmt.Errorf("invalid frequency %q", r.Frequency)
	}
	if r.Amount == "" && r.PlanID == nil {
		return fmt.Errorf("amount is required when no planId is given")
	}
	if r.Amount != "" {
		if _, err := decimal.NewFromString(r.Amount); err != nil {
			return fmt.Errorf("invalid amount: %w", err)
		}
	}
	if _, err := time.Parse(time.DateOnly, r.StartDate); err != nil || r.StartDate == "" {
		return fmt.Errorf("invalid startDate format (use YYYY-MM-DD): %w", err)
	}
	if r.EndDate != nil {
		if _, err := time.Parse(time.DateOnly, *r.EndDate); err != nil {
			return fmt.Errorf("invalid endDate format (use YYYY-MM-DD): %w", err)
		}
	}
	return nil
}

// ToDomain builds the domain schedule; full invariant checks run again in the
// service via BillingSchedule.Validate.
func (r *CreateScheduleRequest) ToDomain() (*schedule.BillingSchedule, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}

	amount := decimal.Zero
	if r.Amount != "" {
		amount, _ = decimal.NewFromString(r.Amount)
	}
	startDate, _ := time.Parse(time.DateOnly, r.StartDate)

	var endDate *time.Time
	if r.EndDate != nil {
		d, _ := time.Parse(time.DateOnly, *r.EndDate)
		endDate = &d
	}

	autoGenerate := true
	if r.AutoGenerateInvoice != nil {
		autoGenerate = *r.AutoGenerateInvoice
	}
	paymentMethod := r.PaymentMethod
	if paymentMethod == "" {
		paymentMethod = schedule.PaymentMethodDefault
	}

	return &schedule.BillingSchedule{
		CustomerID:              r.CustomerID,
		PlanID:                  r.PlanID,
		Title:                   strings.TrimSpace(r.Title),
		Description:             r.Description,
		Amount:                  amount,
		Frequency:               validFrequencies[strings.ToUpper(r.Frequency)],
		CustomDays:              r.CustomDays,
		DueDay:                  r.DueDay,
		StartDate:               startDate,
		EndDate:                 endDate,
		NotificationDays:        schedule.NewNotificationDays(r.NotificationDays...),
		AutoGenerateInvoice:     autoGenerate,
		PaymentMethod:           paymentMethod,
		PaymentGatewayID:        r.PaymentGatewayID,
		AutoCharge:              r.AutoCharge,
		Installments:            r.Installments,
		ApplyLateFee:            r.ApplyLateFee,
		LateFeePercentage:       decimal.NewFromFloat(r.LateFeePercentage),
		ApplyDailyInterest:      r.ApplyDailyInterest,
		DailyInterestPercentage: decimal.NewFromFloat(r.DailyInterestPercentage),
		Notes:                   r.Notes,
	}, nil
}

// UpdateScheduleRequest mirrors the create payload; lifecycle fields are
// managed by the dedicated endpoints and ignored here.
type UpdateScheduleRequest struct {
	CreateScheduleRequest
}

type ScheduleResponse struct {
	ID                      string    `json:"id"`
	CustomerID              string    `json:"customerId"`
	PlanID                  *string   `json:"planId,omitempty"`
	Title                   string    `json:"title"`
	Description             string    `json:"description,omitempty"`
	Amount                  string    `json:"amount"`
	Frequency               string    `json:"frequency"`
	CustomDays              int       `json:"customDays,omitempty"`
	DueDay                  int       `json:"dueDay"`
	StartDate               string    `json:"startDate"`
	EndDate                 *string   `json:"endDate,omitempty"`
	NextBillingDate         string    `json:"nextBillingDate"`
	NotificationDays        []int     `json:"notificationDays"`
	AutoGenerateInvoice     bool      `json:"autoGenerateInvoice"`
	PaymentMethod           string    `json:"paymentMethod"`
	PaymentGatewayID        *string   `json:"paymentGatewayId,omitempty"`
	AutoCharge              bool      `json:"autoCharge"`
	Status                  string    `json:"status"`
	Installments            *int      `json:"installments,omitempty"`
	InstallmentsGenerated   int       `json:"installmentsGenerated"`
	ApplyLateFee            bool      `json:"applyLateFee"`
	LateFeePercentage       string    `json:"lateFeePercentage,omitempty"`
	ApplyDailyInterest      bool      `json:"applyDailyInterest"`
	DailyInterestPercentage string    `json:"dailyInterestPercentage,omitempty"`
	LastExecutionDate       *string   `json:"lastExecutionDate,omitempty"`
	LastGeneratedInvoiceID  *string   `json:"lastGeneratedInvoiceId,omitempty"`
	Notes                   string    `json:"notes,omitempty"`
	CreatedAt               time.Time `json:"createdAt"`
	UpdatedAt               time.Time `json:"updatedAt"`
}

func NewScheduleResponse(s *schedule.BillingSchedule) ScheduleResponse {
	if s == nil {
		return ScheduleResponse{}
	}

	resp := ScheduleResponse{
		ID:                    strconv.FormatInt(s.ID, 10),
		CustomerID:            strconv.FormatInt(s.CustomerID, 10),
		Title:                 s.Title,
		Description:           s.Description,
		Amount:                s.Amount.StringFixed(2),
		Frequency:             string(s.Frequency),
		CustomDays:            s.CustomDays,
		DueDay:                s.DueDay,
		StartDate:             s.StartDate.Format(time.DateOnly),
		NextBillingDate:       s.NextBillingDate.Format(time.DateOnly),
		NotificationDays:      s.NotificationDays,
		AutoGenerateInvoice:   s.AutoGenerateInvoice,
		PaymentMethod:         s.PaymentMethod,
		AutoCharge:            s.AutoCharge,
		Status:                string(s.Status),
		Installments:          s.Installments,
		InstallmentsGenerated: s.InstallmentsGenerated,
		ApplyLateFee:          s.ApplyLateFee,
		ApplyDailyInterest:    s.ApplyDailyInterest,
		Notes:                 s.Notes,
		CreatedAt:             s.CreatedAt,
		UpdatedAt:             s.UpdatedAt,
	}
	if resp.NotificationDays == nil {
		resp.NotificationDays = []int{}
	}
	if s.PlanID != nil {
		v := strconv.FormatInt(*s.PlanID, 10)
		resp.PlanID = &v
	}
	if s.EndDate != nil {
		v := s.EndDate.Format(time.DateOnly)
		resp.EndDate = &v
	}
	if s.PaymentGatewayID != nil {
		v := strconv.FormatInt(*s.PaymentGatewayID, 10)
		resp.PaymentGatewayID = &v
	}
	if s.ApplyLateFee {
		resp.LateFeePercentage = s.LateFeePercentage.String()
	}
	if s.ApplyDailyInterest {
		resp.DailyInterestPercentage = s.DailyInterestPercentage.String()
	}
	if s.LastExecutionDate != nil {
		v := s.LastExecutionDate.Format(time.RFC3339)
		resp.LastExecutionDate = &v
	}
	if s.LastGeneratedInvoiceID != nil {
		v := strconv.FormatInt(*s.LastGeneratedInvoiceID, 10)
		resp.LastGeneratedInvoiceID = &v
	}
	return resp
}

type NotificationTriggerResponse struct {
	TriggerDate string `json:"triggerDate"`
	DaysBefore  int    `json:"daysBefore"`
}

type NotificationPlanResponse struct {
	ScheduleID      string                        `json:"scheduleId"`
	NextBillingDate string                        `json:"nextBillingDate"`
	Triggers        []NotificationTriggerResponse `json:"triggers"`
}

func NewNotificationPlanResponse(s *schedule.BillingSchedule) NotificationPlanResponse {
	triggers := schedule.NotificationTriggers(s.NextBillingDate, s.NotificationDays)
	out := make([]NotificationTriggerResponse, 0, len(triggers))
	for _, tr := range triggers {
		out = append(out, NotificationTriggerResponse{
			TriggerDate: tr.TriggerDate.Format(time.DateOnly),
			DaysBefore:  tr.DaysBefore,
		})
	}
	return NotificationPlanResponse{
		ScheduleID:      strconv.FormatInt(s.ID, 10),
		NextBillingDate: s.NextBillingDate.Format(time.DateOnly),
		Triggers:        out,
	}
}

type ErrorDetail struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

type TokenRequest struct {
	Username string `json:"username"`
}
