package customer

import (
	"time"

	"github.com/shopspring/decimal"
)

type Customer struct {
	CustomerID           int64     `json:"customerId"`
	Name                 string    `json:"name"`
	Email                string    `json:"email"`
	DefaultPaymentMethod string    `json:"defaultPaymentMethod"`
	Active               bool      `json:"active"`
	CreateDate           time.Time `json:"createDate"`
	UpdatedAt            time.Time `json:"updatedAt"`
}

// Plan is the catalog entry a schedule may point at; only its price is read
// here, when a schedule is created without an explicit amount.
type Plan struct {
	PlanID    int64           `json:"planId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Active    bool            `json:"active"`
	CreatedAt time.Time       `json:"createdAt"`
}
