package repository

import (
	"context"

	"rental/internal/domain"
)

// PaymentRepository defines the persistence operations for payments.
type PaymentRepository interface {
	// Create persists a new payment.
	Create(ctx context.Context, payment *domain.Payment) error

	// GetByID retrieves a payment by ID.
	GetByID(ctx context.Context, id string) (*domain.Payment, error)

	// GetByBookingID retrieves the payment attached to a booking.
	GetByBookingID(ctx context.Context, bookingID string) (*domain.Payment, error)

	// Update writes the mutable fields of a payment.
	Update(ctx context.Context, payment *domain.Payment) error
}
