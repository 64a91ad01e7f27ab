package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/staylet/rental-booking-backend/internal/models"
)

// AvailabilityCache stores the unavailable ranges of a listing.
// It is an accelerator only; storage stays authoritative.
type AvailabilityCache interface {
	// Get returns the cached ranges and whether the key was present
	Get(ctx context.Context, listingID int64) ([]models.DateRange, bool, error)
	Set(ctx context.Context, listingID int64, ranges []models.DateRange) error
	Invalidate(ctx context.Context, listingID int64) error
}

// Key returns the cache key for a listing
func Key(listingID int64) string {
	return fmt.Sprintf("availability:listing:%d", listingID)
}

// RedisAvailabilityCache implements AvailabilityCache on Redis
type RedisAvailabilityCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisClient creates a client with short timeouts so a slow cache never
// holds up a request
func NewRedisClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// NewRedisAvailabilityCache creates a Redis-backed cache
func NewRedisAvailabilityCache(rdb *redis.Client, ttl time.Duration) *RedisAvailabilityCache {
	return &RedisAvailabilityCache{rdb: rdb, ttl: ttl}
}

// Get implements AvailabilityCache
func (c *RedisAvailabilityCache) Get(ctx context.Context, listingID int64) ([]models.DateRange, bool, error) {
	raw, err := c.rdb.Get(ctx, Key(listingID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var ranges []models.DateRange
	if err := json.Unmarshal(raw, &ranges); err != nil {
		// A corrupt entry is treated as a miss and overwritten on the next Set
		return nil, false, nil
	}
	return ranges, true, nil
}

// Set implements AvailabilityCache
func (c *RedisAvailabilityCache) Set(ctx context.Context, listingID int64, ranges []models.DateRange) error {
	raw, err := json.Marshal(ranges)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, Key(listingID), raw, c.ttl).Err()
}

// Invalidate implements AvailabilityCache
func (c *RedisAvailabilityCache) Invalidate(ctx context.Context, listingID int64) error {
	return c.rdb.Del(ctx, Key(listingID)).Err()
}

// Ping checks connectivity
func (c *RedisAvailabilityCache) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// NopAvailabilityCache is used when no Redis address is configured
type NopAvailabilityCache struct{}

// Get always misses
func (NopAvailabilityCache) Get(context.Context, int64) ([]models.DateRange, bool, error) {
	return nil, false, nil
}

// Set discards the value
func (NopAvailabilityCache) Set(context.Context, int64, []models.DateRange) error { return nil }

// Invalidate does nothing
func (NopAvailabilityCache) Invalidate(context.Context, int64) error { return nil }
