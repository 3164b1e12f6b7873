package redis

import (
	"context"
	"time"

	"rental/internal/domain"
)

// AvailabilityCacheInterface defines the interface for cached availability answers.
type AvailabilityCacheInterface interface {
	GetAvailability(ctx context.Context, vehicleID, rangeKey string) (available, found bool, err error)
	SetAvailability(ctx context.Context, vehicleID, rangeKey string, available bool, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, vehicleID string) error
}

// VehicleCacheInterface defines the interface for cached vehicle reads.
type VehicleCacheInterface interface {
	GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error)
	SetVehicle(ctx context.Context, v *domain.Vehicle) error
	InvalidateVehicle(ctx context.Context, vehicleID string) error
}

// LockStoreInterface defines the interface for distributed locking.
type LockStoreInterface interface {
	Acquire(ctx context.Context, name string, ttl, wait time.Duration) (func(), error)
}

// Ensure concrete types implement interfaces.
var (
	_ AvailabilityCacheInterface = (*CacheStore)(nil)
	_ VehicleCacheInterface      = (*CacheStore)(nil)
	_ LockStoreInterface         = (*LockStore)(nil)
)
