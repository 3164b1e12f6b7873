package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// RevenueRepository defines the persistence operations for revenue records.
type RevenueRepository interface {
	// CreateBatch persists records. A record already present for the same booking, payment
	// and revenue type is skipped.
	CreateBatch(ctx context.Context, records []*domain.RevenueRecord) error

	// ListByPayment returns the records posted for a booking payment.
	ListByPayment(ctx context.Context, bookingID, paymentID string) ([]*domain.RevenueRecord, error)

	// CancelPendingByBooking moves a booking's pending records to cancelled.
	CancelPendingByBooking(ctx context.Context, bookingID string) (int64, error)

	// Settle moves pending records to settled.
	Settle(ctx context.Context, ids []string, period string, at time.Time) (int64, error)
}
