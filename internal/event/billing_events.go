package event

import "time"

// InvoiceGeneratedEvent announces one invoice committed for one billing cycle.
type InvoiceGeneratedEvent struct {
	InvoiceID     int64     `json:"invoiceId"`
	ScheduleID    int64     `json:"scheduleId"`
	CustomerID    int64     `json:"customerId"`
	Amount        string    `json:"amount"`
	DueDate       time.Time `json:"dueDate"`
	PaymentMethod string    `json:"paymentMethod"`
	Installment   *int      `json:"installment,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// ScheduleStatusChangedEvent announces a manual lifecycle transition.
type ScheduleStatusChangedEvent struct {
	ScheduleID      int64     `json:"scheduleId"`
	CustomerID      int64     `json:"customerId"`
	OldStatus       string    `json:"oldStatus"`
	NewStatus       string    `json:"newStatus"`
	NextBillingDate time.Time `json:"nextBillingDate"`
	Timestamp       time.Time `json:"timestamp"`
}

// PaymentReminderEvent is handed to the notification sink; the engine decides
// when a reminder fires, never how it is delivered.
type PaymentReminderEvent struct {
	ScheduleID    int64     `json:"scheduleId"`
	CustomerID    int64     `json:"customerId"`
	CustomerName  string    `json:"customerName"`
	CustomerEmail string    `json:"customerEmail,omitempty"`
	Title         string    `json:"title"`
	Amount        string    `json:"amount"`
	DueDate       time.Time `json:"dueDate"`
	DaysBefore    int       `json:"daysBefore"`
	Timestamp     time.Time `json:"timestamp"`
}
