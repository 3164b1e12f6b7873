package service

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"rental/internal/repository"
)

// AvailabilityCache caches answers of the optimistic availability check.
type AvailabilityCache interface {
	GetAvailability(ctx context.Context, vehicleID, rangeKey string) (available, found bool, err error)
	SetAvailability(ctx context.Context, vehicleID, rangeKey string, available bool, ttl time.Duration) error
	InvalidateAvailability(ctx context.Context, vehicleID string) error
}

// AvailabilityChecker decides whether a vehicle is free for a date range.
//
// IsAvailable is the optimistic pass and may answer from cache. EnsureAvailable is the
// authoritative pass; it must run inside a transaction that holds the vehicle lock and
// never consults the cache.
type AvailabilityChecker struct {
	bookings repository.BookingRepository
	cache    AvailabilityCache
	ttl      time.Duration
	logger   *zap.Logger
}

// NewAvailabilityChecker creates a new AvailabilityChecker. cache may be nil.
func NewAvailabilityChecker(
	bookings repository.BookingRepository,
	cache AvailabilityCache,
	ttl time.Duration,
	logger *zap.Logger,
) *AvailabilityChecker {
	return &AvailabilityChecker{
		bookings: bookings,
		cache:    cache,
		ttl:      ttl,
		logger:   logger,
	}
}

// IsAvailable reports whether no blocking booking overlaps [start, end).
// excludeBookingID lets a booking be checked against everything but itself.
func (c *AvailabilityChecker) IsAvailable(ctx context.Context, vehicleID string, start, end time.Time, excludeBookingID string) (bool, error) {
	if vehicleID == "" {
		return false, ErrInvalidVehicleID
	}
	if !start.Before(end) {
		return false, ErrInvalidDateRange
	}

	key := rangeKey(start, end, excludeBookingID)

	if c.cache != nil {
		available, found, err := c.cache.GetAvailability(ctx, vehicleID, key)
		if err != nil {
			c.logger.Warn("availability cache read failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		} else if found {
			return available, nil
		}
	}

	overlapping, err := c.bookings.FindOverlapping(ctx, vehicleID, start, end, excludeBookingID)
	if err != nil {
		return false, err
	}
	available := len(overlapping) == 0

	if c.cache != nil {
		if err := c.cache.SetAvailability(ctx, vehicleID, key, available, c.ttl); err != nil {
			c.logger.Warn("availability cache write failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
		}
	}

	return available, nil
}

// EnsureAvailable re-checks availability against the rows visible to tx.
func (c *AvailabilityChecker) EnsureAvailable(ctx context.Context, tx repository.Tx, vehicleID string, start, end time.Time, excludeBookingID string) error {
	overlapping, err := tx.Bookings().FindOverlapping(ctx, vehicleID, start, end, excludeBookingID)
	if err != nil {
		return err
	}
	if len(overlapping) > 0 {
		b := overlapping[0]
		return fmt.Errorf("%w: held by booking %s from %s to %s", ErrBookingConflict,
			b.ID, b.StartDate.Format(time.DateOnly), b.EndDate.Format(time.DateOnly))
	}
	return nil
}

// Invalidate drops every cached answer for a vehicle.
func (c *AvailabilityChecker) Invalidate(ctx context.Context, vehicleID string) {
	if c.cache == nil {
		return
	}
	if err := c.cache.InvalidateAvailability(ctx, vehicleID); err != nil {
		c.logger.Warn("availability cache invalidation failed", zap.String("vehicle_id", vehicleID), zap.Error(err))
	}
}

func rangeKey(start, end time.Time, excludeBookingID string) string {
	return strconv.FormatInt(start.Unix(), 10) + ":" + strconv.FormatInt(end.Unix(), 10) + ":" + excludeBookingID
}

