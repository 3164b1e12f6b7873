package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rental/internal/domain"
)

func newTestClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestCacheStore_AvailabilityRoundTripAndInvalidate(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	_, found, err := store.GetAvailability(ctx, "vehicle-1", "r1")
	require.NoError(t, err)
	assert.False(t, found)

	require.NoError(t, store.SetAvailability(ctx, "vehicle-1", "r1", true, time.Minute))
	require.NoError(t, store.SetAvailability(ctx, "vehicle-1", "r2", false, time.Minute))

	available, found, err := store.GetAvailability(ctx, "vehicle-1", "r1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, available)

	available, found, err = store.GetAvailability(ctx, "vehicle-1", "r2")
	require.NoError(t, err)
	assert.True(t, found)
	assert.False(t, available)

	require.NoError(t, store.InvalidateAvailability(ctx, "vehicle-1"))

	_, found, err = store.GetAvailability(ctx, "vehicle-1", "r1")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheStore_AvailabilityFieldExpires(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	now := time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	require.NoError(t, store.SetAvailability(ctx, "vehicle-1", "old", true, time.Minute))

	// A later write refreshes the hash TTL but not the older field.
	now = now.Add(2 * time.Minute)
	require.NoError(t, store.SetAvailability(ctx, "vehicle-1", "new", true, time.Minute))

	_, found, err := store.GetAvailability(ctx, "vehicle-1", "old")
	require.NoError(t, err)
	assert.False(t, found)

	_, found, err = store.GetAvailability(ctx, "vehicle-1", "new")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestCacheStore_VehicleRoundTrip(t *testing.T) {
	t.Parallel()

	client, mr := newTestClient(t)
	store := NewCacheStore(client)
	ctx := context.Background()

	v := &domain.Vehicle{
		ID:                 "vehicle-1",
		OwnerID:            "owner-1",
		Name:               "Toyota Axio",
		City:               "Colombo",
		VehicleType:        "sedan",
		PricePerDay:        5000,
		Seats:              5,
		Status:             domain.VehicleStatusAvailable,
		VerificationStatus: domain.VerificationApproved,
	}
	require.NoError(t, store.SetVehicle(ctx, v))
	assert.Greater(t, mr.TTL(vehicleCachePrefix+"vehicle-1"), time.Duration(0))

	got, err := store.GetVehicle(ctx, "vehicle-1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, v.OwnerID, got.OwnerID)
	assert.Equal(t, v.PricePerDay, got.PricePerDay)
	assert.Equal(t, domain.VerificationApproved, got.VerificationStatus)

	require.NoError(t, store.InvalidateVehicle(ctx, "vehicle-1"))
	got, err = store.GetVehicle(ctx, "vehicle-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestLockStore_SecondAcquireWaitsForRelease(t *testing.T) {
	t.Parallel()

	client, _ := newTestClient(t)
	store := NewLockStore(client)
	ctx := context.Background()

	release, err := store.Acquire(ctx, "payhere:order-1", 10*time.Second, 0)
	require.NoError(t, err)

	_, err = store.Acquire(ctx, "payhere:order-1", 10*time.Second, 0)
	assert.ErrorIs(t, err, ErrLockNotAcquired)

	release()

	release2, err := store.Acquire(ctx, "payhere:order-1", 10*time.Second, 0)
	require.NoError(t, err)
	release2()
}
