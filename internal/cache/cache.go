package cache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// Cache is a thin JSON cache over Redis with singleflight collapsing for
// concurrent recomputes of the same key.
type Cache struct {
	rdb *redis.Client
	sf  singleflight.Group
}

// New wraps a Redis client.
func New(client *redis.Client) *Cache {
	return &Cache{rdb: client}
}

// GetString fetches a raw value; the second return is false on a miss.
func (c *Cache) GetString(ctx context.Context, key string) (string, bool, error) {
	s, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return s, true, nil
}

// SetString stores a raw value with a TTL.
func (c *Cache) SetString(ctx context.Context, key, val string, ttl time.Duration) error {
	return c.rdb.Set(ctx, key, val, ttl).Err()
}

// Del removes keys.
func (c *Cache) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return c.rdb.Del(ctx, keys...).Err()
}

// Once collapses concurrent calls for the same key into a single execution.
func (c *Cache) Once(key string, fn func() (interface{}, error)) (interface{}, error) {
	v, err, _ := c.sf.Do(key, fn)
	return v, err
}

// GetJSON fetches and unmarshals a cached value.
func GetJSON[T any](ctx context.Context, c *Cache, key string) (T, bool, error) {
	var zero T

	s, ok, err := c.GetString(ctx, key)
	if err != nil || !ok {
		return zero, ok, err
	}

	var out T
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return zero, false, err
	}
	return out, true, nil
}

// SetJSON marshals and stores a value with a TTL.
func SetJSON(ctx context.Context, c *Cache, key string, val any, ttl time.Duration) error {
	b, err := json.Marshal(val)
	if err != nil {
		return err
	}
	return c.SetString(ctx, key, string(b), ttl)
}
