package dto

import (
	"fmt"
	"strconv"
	"time"

	"recurring-billing/internal/domain/invoice"

	"github.com/shopspring/decimal"
)

type InvoiceResponse struct {
	ID                string     `json:"id"`
	CustomerID        string     `json:"customerId"`
	BillingScheduleID *string    `json:"billingScheduleId,omitempty"`
	Amount            string     `json:"amount"`
	DueDate           string     `json:"dueDate"`
	Status            string     `json:"status"`
	PaymentMethod     string     `json:"paymentMethod"`
	PaymentGatewayID  *string    `json:"paymentGatewayId,omitempty"`
	Description       string     `json:"description,omitempty"`
	PaymentDate       *time.Time `json:"paymentDate,omitempty"`
	TransactionID     *string    `json:"transactionId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

func NewInvoiceResponse(inv *invoice.Invoice) InvoiceResponse {
	if inv == nil {
		return InvoiceResponse{}
	}

	resp := InvoiceResponse{
		ID:            strconv.FormatInt(inv.ID, 10),
		CustomerID:    strconv.FormatInt(inv.CustomerID, 10),
		Amount:        inv.Amount.StringFixed(2),
		DueDate:       inv.DueDate.Format(time.DateOnly),
		Status:        string(inv.Status),
		PaymentMethod: inv.PaymentMethod,
		Description:   inv.Description,
		PaymentDate:   inv.PaymentDate,
		TransactionID: inv.TransactionID,
		CreatedAt:     inv.CreatedAt,
		UpdatedAt:     inv.UpdatedAt,
	}
	if inv.BillingScheduleID != nil {
		v := strconv.FormatInt(*inv.BillingScheduleID, 10)
		resp.BillingScheduleID = &v
	}
	if inv.PaymentGatewayID != nil {
		v := strconv.FormatInt(*inv.PaymentGatewayID, 10)
		resp.PaymentGatewayID = &v
	}
	return resp
}

func NewInvoiceListResponse(invoices []*invoice.Invoice) []InvoiceResponse {
	out := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, NewInvoiceResponse(inv))
	}
	return out
}

type UpdateInvoiceStatusRequest struct {
	Status        string  `json:"status"`
	PaymentDate   *string `json:"paymentDate,omitempty"`
	TransactionID *string `json:"transactionId,omitempty"`
}

func (r *UpdateInvoiceStatusRequest) Validate() error {
	if !invoice.InvoiceStatus(r.Status).Valid() {
		return fmt.Errorf("invalid invoice status %q", r.Status)
	}
	if r.PaymentDate != nil {
		if _, err := time.Parse(time.DateOnly, *r.PaymentDate); err != nil {
			return fmt.Errorf("invalid paymentDate format (use YYYY-MM-DD): %w", err)
		}
	}
	return nil
}

func (r *UpdateInvoiceStatusRequest) ParsedPaymentDate() *time.Time {
	if r.PaymentDate == nil {
		return nil
	}
	d, err := time.Parse(time.DateOnly, *r.PaymentDate)
	if err != nil {
		return nil
	}
	return &d
}

type SurchargeResponse struct {
	InvoiceID string `json:"invoiceId"`
	AsOf      string `json:"asOf"`
	Surcharge string `json:"surcharge"`
	Total     string `json:"total"`
}

func NewSurchargeResponse(inv *invoice.Invoice, asOf time.Time, surcharge decimal.Decimal) SurchargeResponse {
	return SurchargeResponse{
		InvoiceID: strconv.FormatInt(inv.ID, 10),
		AsOf:      asOf.Format(time.DateOnly),
		Surcharge: surcharge.StringFixed(2),
		Total:     inv.Amount.Add(surcharge).StringFixed(2),
	}
}
