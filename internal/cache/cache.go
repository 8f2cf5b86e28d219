// Package cache holds the Redis layer in front of the upstream weather and
// geocoding APIs. TTLs mirror the cache lifetimes the dashboard advertises
// over HTTP: ten minutes for weather, a day for reverse-geocode results.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/skypulse/skypulse/internal/geocode"
	"github.com/skypulse/skypulse/internal/openmeteo"
	"github.com/skypulse/skypulse/internal/weather"
)

const (
	weatherTTL = 10 * time.Minute
	geocodeTTL = 24 * time.Hour
)

// Cache wraps a Redis client with typed get/set for weather snapshots and
// reverse-geocode results.
type Cache struct {
	client     *redis.Client
	weatherTTL time.Duration
	geocodeTTL time.Duration
}

// New constructs a Cache with the default TTLs.
func New(client *redis.Client) *Cache {
	return &Cache{client: client, weatherTTL: weatherTTL, geocodeTTL: geocodeTTL}
}

// weatherKey builds the Redis key for one (lat, lon, units) snapshot. The
// same coordinates produce independent entries under metric and imperial
// because unit conversion is baked into the upstream call.
func weatherKey(lat, lon float64, units openmeteo.Units) string {
	return fmt.Sprintf("weather:%v,%v,%s", lat, lon, units)
}

func geocodeKey(lat, lon float64) string {
	return "geocode:" + geocode.Key(lat, lon)
}

// GetSnapshot retrieves a cached snapshot. A miss returns nil, nil.
func (c *Cache) GetSnapshot(ctx context.Context, lat, lon float64, units openmeteo.Units) (*weather.Snapshot, error) {
	key := weatherKey(lat, lon, units)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var snap weather.Snapshot
	if err := json.Unmarshal([]byte(val), &snap); err != nil {
		return nil, fmt.Errorf("unmarshaling cached snapshot %s: %w", key, err)
	}

	return &snap, nil
}

// SetSnapshot stores a snapshot with the weather TTL. Nil input is a no-op.
func (c *Cache) SetSnapshot(ctx context.Context, lat, lon float64, units openmeteo.Units, snap *weather.Snapshot) error {
	if snap == nil {
		return nil
	}
	key := weatherKey(lat, lon, units)

	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshaling snapshot %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, b, c.weatherTTL).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	return nil
}

// GetPlace retrieves a cached reverse-geocode result. A miss returns nil, nil.
func (c *Cache) GetPlace(ctx context.Context, lat, lon float64) (*geocode.Place, error) {
	key := geocodeKey(lat, lon)

	val, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	var place geocode.Place
	if err := json.Unmarshal([]byte(val), &place); err != nil {
		return nil, fmt.Errorf("unmarshaling cached place %s: %w", key, err)
	}

	return &place, nil
}

// SetPlace stores a reverse-geocode result with the geocode TTL.
func (c *Cache) SetPlace(ctx context.Context, lat, lon float64, place geocode.Place) error {
	key := geocodeKey(lat, lon)

	b, err := json.Marshal(place)
	if err != nil {
		return fmt.Errorf("marshaling place %s: %w", key, err)
	}

	if err := c.client.Set(ctx, key, b, c.geocodeTTL).Err(); err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	return nil
}
