package invoice

import (
	"time"

	"github.com/shopspring/decimal"
)

type InvoiceStatus string

const (
	StatusPending   InvoiceStatus = "PENDING"
	StatusPaid      InvoiceStatus = "PAID"
	StatusOverdue   InvoiceStatus = "OVERDUE"
	StatusCancelled InvoiceStatus = "CANCELLED"
)

func (s InvoiceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusOverdue, StatusCancelled:
		return true
	}
	return false
}

// Invoice is one charge for one billing cycle. Created exactly once by the
// generator; afterwards only status, payment date and transaction id move,
// driven by the external payment-recording collaborator.
type Invoice struct {
	ID                int64
	CustomerID        int64
	BillingScheduleID *int64
	Amount            decimal.Decimal
	DueDate           time.Time
	Status            InvoiceStatus
	PaymentMethod     string
	PaymentGatewayID  *int64
	Description       string
	PaymentDate       *time.Time
	TransactionID     *string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
