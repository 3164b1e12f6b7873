package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// InstallmentRepository defines the persistence operations for installment plans.
type InstallmentRepository interface {
	// CreatePlan persists a plan together with its schedule.
	CreatePlan(ctx context.Context, plan *domain.InstallmentPlan, installments []*domain.Installment) error

	// GetPlanByPayment retrieves the plan financing a payment.
	GetPlanByPayment(ctx context.Context, paymentID string) (*domain.InstallmentPlan, error)

	// GetInstallment retrieves one installment by ID.
	GetInstallment(ctx context.Context, id string) (*domain.Installment, error)

	// ListInstallments returns a plan's schedule ordered by number.
	ListInstallments(ctx context.Context, planID string) ([]*domain.Installment, error)

	// CountActivePlans counts a user's active plans of the given kind.
	CountActivePlans(ctx context.Context, userID string, kind domain.InstallmentKind) (int, error)

	// UpdatePlanStatus updates the status of a plan.
	UpdatePlanStatus(ctx context.Context, planID string, status domain.PlanStatus) error

	// MarkInstallmentPaid records payment of an installment.
	MarkInstallmentPaid(ctx context.Context, id, paymentRef string, at time.Time) error

	// CancelUnpaid moves a plan's pending and overdue installments to cancelled.
	CancelUnpaid(ctx context.Context, planID string) (int64, error)

	// MarkOverdue moves pending installments of active plans due before asOf to overdue.
	MarkOverdue(ctx context.Context, asOf time.Time) (int64, error)
}
