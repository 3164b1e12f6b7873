package redis

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"rental/internal/domain"
)

// CacheStore handles read-through caching in Redis.
type CacheStore struct {
	client *redis.Client
	now    func() time.Time
}

// NewCacheStore creates a new CacheStore.
func NewCacheStore(client *redis.Client) *CacheStore {
	return &CacheStore{client: client, now: time.Now}
}

// Cache TTL constants
const (
	AvailabilityCacheTTL = 2 * time.Minute // Optimistic pre-check only
	VehicleCacheTTL      = 5 * time.Minute // Listings change rarely
)

// Key prefixes
const (
	availabilityCachePrefix = "cache:availability:"
	vehicleCachePrefix      = "cache:vehicle:"
)

// CachedVehicle represents a cached vehicle entity.
type CachedVehicle struct {
	ID                 string  `json:"id"`
	OwnerID            string  `json:"owner_id"`
	Name               string  `json:"name"`
	City               string  `json:"city"`
	VehicleType        string  `json:"vehicle_type"`
	PricePerDay        float64 `json:"price_per_day"`
	Seats              int     `json:"seats"`
	FuelType           string  `json:"fuel_type"`
	Transmission       string  `json:"transmission"`
	Status             string  `json:"status"`
	VerificationStatus string  `json:"verification_status"`
	IsBlacklisted      bool    `json:"is_blacklisted"`
}

// GetAvailability returns a cached availability answer for one range query of a vehicle.
// All answers of a vehicle share one hash so a single delete invalidates them.
func (s *CacheStore) GetAvailability(ctx context.Context, vehicleID, rangeKey string) (available, found bool, err error) {
	val, err := s.client.HGet(ctx, availabilityCachePrefix+vehicleID, rangeKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, false, nil // Cache miss
		}
		return false, false, err
	}

	// Value layout: "<0|1>|<unix expiry>". The hash TTL is refreshed on every write,
	// so each field carries its own expiry.
	flag, expiry, ok := strings.Cut(val, "|")
	if !ok {
		return false, false, nil
	}
	expiresAt, err := strconv.ParseInt(expiry, 10, 64)
	if err != nil || s.now().Unix() >= expiresAt {
		return false, false, nil
	}
	return flag == "1", true, nil
}

// SetAvailability stores an availability answer.
func (s *CacheStore) SetAvailability(ctx context.Context, vehicleID, rangeKey string, available bool, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = AvailabilityCacheTTL
	}
	flag := "0"
	if available {
		flag = "1"
	}
	val := flag + "|" + strconv.FormatInt(s.now().Add(ttl).Unix(), 10)

	key := availabilityCachePrefix + vehicleID
	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, key, rangeKey, val)
	pipe.Expire(ctx, key, ttl)
	_, err := pipe.Exec(ctx)
	return err
}

// InvalidateAvailability removes every cached answer for a vehicle.
func (s *CacheStore) InvalidateAvailability(ctx context.Context, vehicleID string) error {
	return s.client.Del(ctx, availabilityCachePrefix+vehicleID).Err()
}

// GetVehicle retrieves a vehicle from cache.
func (s *CacheStore) GetVehicle(ctx context.Context, vehicleID string) (*domain.Vehicle, error) {
	data, err := s.client.Get(ctx, vehicleCachePrefix+vehicleID).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil // Cache miss
		}
		return nil, err
	}

	var cached CachedVehicle
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, err
	}
	return &domain.Vehicle{
		ID:                 cached.ID,
		OwnerID:            cached.OwnerID,
		Name:               cached.Name,
		City:               cached.City,
		VehicleType:        cached.VehicleType,
		PricePerDay:        cached.PricePerDay,
		Seats:              cached.Seats,
		FuelType:           cached.FuelType,
		Transmission:       cached.Transmission,
		Status:             domain.VehicleStatus(cached.Status),
		VerificationStatus: domain.VerificationStatus(cached.VerificationStatus),
		IsBlacklisted:      cached.IsBlacklisted,
	}, nil
}

// SetVehicle stores a vehicle in cache.
func (s *CacheStore) SetVehicle(ctx context.Context, v *domain.Vehicle) error {
	data, err := json.Marshal(CachedVehicle{
		ID:                 v.ID,
		OwnerID:            v.OwnerID,
		Name:               v.Name,
		City:               v.City,
		VehicleType:        v.VehicleType,
		PricePerDay:        v.PricePerDay,
		Seats:              v.Seats,
		FuelType:           v.FuelType,
		Transmission:       v.Transmission,
		Status:             string(v.Status),
		VerificationStatus: string(v.VerificationStatus),
		IsBlacklisted:      v.IsBlacklisted,
	})
	if err != nil {
		return err
	}
	return s.client.Set(ctx, vehicleCachePrefix+v.ID, data, VehicleCacheTTL).Err()
}

// InvalidateVehicle removes a vehicle from cache.
func (s *CacheStore) InvalidateVehicle(ctx context.Context, vehicleID string) error {
	return s.client.Del(ctx, vehicleCachePrefix+vehicleID).Err()
}
