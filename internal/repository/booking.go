package repository

import (
	"context"
	"time"

	"rental/internal/domain"
)

// BookingRepository defines the persistence operations for bookings.
type BookingRepository interface {
	// Create persists a new booking.
	Create(ctx context.Context, booking *domain.Booking) error

	// GetByID retrieves a booking by ID.
	GetByID(ctx context.Context, id string) (*domain.Booking, error)

	// Update writes the mutable fields of a booking.
	Update(ctx context.Context, booking *domain.Booking) error

	// FindOverlapping returns the bookings of a vehicle in a blocking status whose range
	// intersects [start, end). excludeID is ignored when empty.
	FindOverlapping(ctx context.Context, vehicleID string, start, end time.Time, excludeID string) ([]*domain.Booking, error)

	// ListStartingBefore returns confirmed or paid bookings whose rental period has begun.
	ListStartingBefore(ctx context.Context, t time.Time, limit int) ([]*domain.Booking, error)
}
