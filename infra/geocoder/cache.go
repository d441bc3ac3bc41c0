package geocoder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/kilianp07/freightmatch/core/logger"
	"github.com/kilianp07/freightmatch/core/source"
)

// Point is a cached coordinate pair.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Cache stores geocoding results. Get reports false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (Point, bool, error)
	Set(ctx context.Context, key string, p Point) error
}

// KeyPrefix namespaces cache entries.
const KeyPrefix = "geocode:"

// RedisCache implements Cache with go-redis.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and checks the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

func cacheKey(location string) string {
	return KeyPrefix + strings.ToLower(strings.TrimSpace(location))
}

func (c *RedisCache) Get(ctx context.Context, key string) (Point, bool, error) {
	data, err := c.client.Get(ctx, cacheKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Point{}, false, nil
	}
	if err != nil {
		return Point{}, false, fmt.Errorf("redis get failed: %w", err)
	}
	var p Point
	if err := json.Unmarshal(data, &p); err != nil {
		return Point{}, false, fmt.Errorf("unmarshal cached point failed: %w", err)
	}
	return p, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, p Point) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal cached point failed: %w", err)
	}
	if err := c.client.Set(ctx, cacheKey(key), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Close closes the Redis client.
func (c *RedisCache) Close() error { return c.client.Close() }

// Cached answers from cache when possible and stores successful lookups.
// Cache failures are logged and never fail a lookup.
type Cached struct {
	next  source.Geocoder
	cache Cache
	log   logger.Logger
}

// NewCached wraps next with cache.
func NewCached(next source.Geocoder, cache Cache, log logger.Logger) *Cached {
	return &Cached{next: next, cache: cache, log: logger.OrNop(log)}
}

func (c *Cached) Geocode(ctx context.Context, location string) (float64, float64, error) {
	p, ok, err := c.cache.Get(ctx, location)
	if err != nil {
		c.log.Warnf("geocode cache read: %v", err)
	}
	if ok {
		return p.Lat, p.Lng, nil
	}
	lat, lng, err := c.next.Geocode(ctx, location)
	if err != nil {
		return 0, 0, err
	}
	if err := c.cache.Set(ctx, location, Point{Lat: lat, Lng: lng}); err != nil {
		c.log.Warnf("geocode cache write: %v", err)
	}
	return lat, lng, nil
}
