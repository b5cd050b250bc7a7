package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"parkwise/backend/services/parking-service/internal/models"
)

const (
	defaultPrefix = "parkwise:sessions:"
	scanBatch     = 200
)

// SessionCache keeps active sessions in redis so every terminal sees the same cache.
type SessionCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewSessionCache returns a redis-backed session cache. An empty prefix selects the default.
func NewSessionCache(client *redis.Client, prefix string, ttl time.Duration) *SessionCache {
	if prefix == "" {
		prefix = defaultPrefix
	}
	return &SessionCache{client: client, prefix: prefix, ttl: ttl}
}

func (c *SessionCache) key(k string) string {
	return fmt.Sprintf("%s%s", c.prefix, k)
}

// Get returns the cached session or nil on a miss.
func (c *SessionCache) Get(ctx context.Context, key string) (*models.Session, error) {
	result, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var session models.Session
	if err := json.Unmarshal(result, &session); err != nil {
		return nil, fmt.Errorf("decode cached session %s: %w", key, err)
	}
	return &session, nil
}

// Set caches the session under key.
func (c *SessionCache) Set(ctx context.Context, key string, s models.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, c.key(key), data, c.ttl).Err()
}

// Delete removes the given keys.
func (c *SessionCache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, 0, len(keys))
	for _, k := range keys {
		full = append(full, c.key(k))
	}
	return c.client.Del(ctx, full...).Err()
}

// Purge drops every key under the prefix.
func (c *SessionCache) Purge(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := c.client.Scan(ctx, cursor, c.prefix+"*", scanBatch).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := c.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
