package repository

import (
	"context"

	"rental/internal/domain"
)

// VehicleRepository defines the persistence operations for vehicles.
type VehicleRepository interface {
	// GetByID retrieves a vehicle by ID. Soft-deleted vehicles are reported as ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.Vehicle, error)

	// UpdateStatus updates the display status of a vehicle.
	UpdateStatus(ctx context.Context, id string, status domain.VehicleStatus) error
}
