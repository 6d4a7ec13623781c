package customer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"recurring-billing/internal/pkg/apperrors"

	"github.com/jackc/pgx/v5"
)

type CustomerService interface {
	GetCustomer(ctx context.Context, customerID int64) (*Customer, error)

	ListActiveCustomers(ctx context.Context) ([]*Customer, error)

	GetPlan(ctx context.Context, planID int64) (*Plan, error)

	// ResolvePaymentMethod applies the two-step fallback: a schedule-level
	// method wins outright; the literal "default" defers to the customer's
	// stored preference.
	ResolvePaymentMethod(ctx context.Context, customerID int64, scheduleMethod string) (string, error)
}

var _ CustomerService = (*customerService)(nil)

type customerService struct {
	repo   CustomerRepository
	logger *slog.Logger
}

func NewCustomerService(repo CustomerRepository, logger *slog.Logger) CustomerService {
	if repo == nil {
		panic("customer repository cannot be nil")
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
		logger.Warn("Warning: No logger provided to NewCustomerService, using default stderr handler")
	}
	return &customerService{
		repo:   repo,
		logger: logger.With(slog.String("component", "customerService")),
	}
}

func (s *customerService) GetCustomer(ctx context.Context, customerID int64) (*Customer, error) {
	if customerID <= 0 {
		return nil, fmt.Errorf("%w: customer ID must be positive", apperrors.ErrInvalidArgument)
	}

	cust, err := s.repo.FindByID(ctx, customerID)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows) {
			s.logger.WarnContext(ctx, "Customer not found", "customerID", customerID)
			return nil, fmt.Errorf("%w: customer %d not found", apperrors.ErrNotFound, customerID)
		}
		s.logger.ErrorContext(ctx, "Failed to look up customer", "customerID", customerID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to look up customer %d: %v", apperrors.ErrDatabase, customerID, err)
	}
	return cust, nil
}

func (s *customerService) ListActiveCustomers(ctx context.Context) ([]*Customer, error) {
	customers, err := s.repo.FindAll(ctx, true)
	if err != nil {
		s.logger.ErrorContext(ctx, "Failed to list active customers", slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to list active customers: %v", apperrors.ErrDatabase, err)
	}
	return customers, nil
}

func (s *customerService) GetPlan(ctx context.Context, planID int64) (*Plan, error) {
	if planID <= 0 {
		return nil, fmt.Errorf("%w: plan ID must be positive", apperrors.ErrInvalidArgument)
	}

	plan, err := s.repo.FindPlanByID(ctx, planID)
	if err != nil {
		if errors.Is(err, ErrPlanNotFound) || errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: plan %d not found", apperrors.ErrNotFound, planID)
		}
		s.logger.ErrorContext(ctx, "Failed to look up plan", "planID", planID, slog.Any("error", err))
		return nil, fmt.Errorf("%w: failed to look up plan %d: %v", apperrors.ErrDatabase, planID, err)
	}
	return plan, nil
}

func (s *customerService) ResolvePaymentMethod(ctx context.Context, customerID int64, scheduleMethod string) (string, error) {
	method := strings.TrimSpace(scheduleMethod)
	if method != "" && !strings.EqualFold(method, "default") {
		return method, nil
	}

	cust, err := s.GetCustomer(ctx, customerID)
	if err != nil {
		return "", err
	}
	if cust.DefaultPaymentMethod == "" {
		s.logger.WarnContext(ctx, "Customer has no default payment method", "customerID", customerID)
		return "", fmt.Errorf("%w: customer %d has no default payment method", apperrors.ErrValidation, customerID)
	}
	return cust.DefaultPaymentMethod, nil
}
