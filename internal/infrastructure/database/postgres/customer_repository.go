package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"recurring-billing/internal/domain/customer"
	"recurring-billing/internal/infrastructure/monitoring"
	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type CustomerRepository struct {
	db     DBPool
	logger *slog.Logger
}

func NewCustomerRepository(db DBPool, logger *slog.Logger) *CustomerRepository {
	return &CustomerRepository{db: db, logger: logger.With("component", "CustomerRepository")}
}

func (r *CustomerRepository) FindByID(ctx context.Context, customerID int64) (*customer.Customer, error) {
	sql := `
        SELECT id, name, email, default_payment_method, active, created_at, updated_at
        FROM customers
        WHERE id = $1`

	status := "success"
	startTime := time.Now()

	var c customer.Customer
	err := r.db.QueryRow(ctx, sql, customerID).Scan(
		&c.CustomerID, &c.Name, &c.Email, &c.DefaultPaymentMethod, &c.Active,
		&c.CreateDate, &c.UpdatedAt,
	)
	if err != nil {
		status = "error"
	}
	monitoring.RecordDBQuery("FindCustomerByID", status, time.Since(startTime))

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find customer by ID", "customer_id", customerID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &c, nil
}

func (r *CustomerRepository) FindAll(ctx context.Context, activeOnly bool) ([]*customer.Customer, error) {
	sql := `
        SELECT id, name, email, default_payment_method, active, created_at, updated_at
        FROM customers`
	if activeOnly {
		sql += ` WHERE active = TRUE`
	}
	sql += ` ORDER BY id ASC`

	rows, err := r.db.Query(ctx, sql)
	if err != nil {
		r.logger.ErrorContext(ctx, "Failed to query customers", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	defer rows.Close()

	customers := make([]*customer.Customer, 0)
	for rows.Next() {
		var c customer.Customer
		err := rows.Scan(
			&c.CustomerID, &c.Name, &c.Email, &c.DefaultPaymentMethod, &c.Active,
			&c.CreateDate, &c.UpdatedAt,
		)
		if err != nil {
			r.logger.ErrorContext(ctx, "Failed to scan customer row", "error", err)
			return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
		}
		customers = append(customers, &c)
	}
	if err = rows.Err(); err != nil {
		r.logger.ErrorContext(ctx, "Error iterating customer rows", "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return customers, nil
}

func (r *CustomerRepository) FindPlanByID(ctx context.Context, planID int64) (*customer.Plan, error) {
	sql := `
        SELECT id, name, price, active, created_at
        FROM plans
        WHERE id = $1`

	var p customer.Plan
	err := r.db.QueryRow(ctx, sql, planID).Scan(&p.PlanID, &p.Name, &p.Price, &p.Active, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, customer.ErrPlanNotFound
		}
		r.logger.ErrorContext(ctx, "Failed to find plan by ID", "plan_id", planID, "error", err)
		return nil, fmt.Errorf(errMsgFormat, apperrors.ErrDatabase, err)
	}
	return &p, nil
}
