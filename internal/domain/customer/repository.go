package customer

import (
	"context"
	"errors"
)

var (
	ErrNotFound = errors.New("customer not found")

	ErrPlanNotFound = errors.New("plan not found")
)

// CustomerRepository is deliberately read-only: customer and plan records are
// owned by the surrounding product, the engine only looks them up.
type CustomerRepository interface {
	FindByID(ctx context.Context, customerID int64) (*Customer, error)

	FindAll(ctx context.Context, activeOnly bool) ([]*Customer, error)

	FindPlanByID(ctx context.Context, planID int64) (*Plan, error)
}
