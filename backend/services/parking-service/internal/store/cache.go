package store

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"parkwise/backend/services/parking-service/internal/models"
)

// Cache holds active sessions looked up by ticket or plate. A miss is (nil, nil).
type Cache interface {
	Get(ctx context.Context, key string) (*models.Session, error)
	Set(ctx context.Context, key string, s models.Session) error
	Delete(ctx context.Context, keys ...string) error
	Purge(ctx context.Context) error
}

// TicketKey is the cache key of an active ticket.
func TicketKey(code string) string {
	return "ticket:" + code
}

// PlateKey is the cache key of a plate's active session.
func PlateKey(plate string) string {
	return "plate:" + plate
}

// SessionKeys returns every key under which s may be cached.
func SessionKeys(s models.Session) []string {
	keys := []string{TicketKey(s.TicketCode)}
	if s.Plate != "" {
		keys = append(keys, PlateKey(s.Plate))
	}
	return keys
}

// LRUCache is an in-process Cache with a bounded size and entry lifetime.
type LRUCache struct {
	lru *expirable.LRU[string, models.Session]
}

// NewLRUCache returns a cache holding at most size entries for ttl each.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	if size <= 0 {
		size = 1024
	}
	return &LRUCache{lru: expirable.NewLRU[string, models.Session](size, nil, ttl)}
}

func (c *LRUCache) Get(_ context.Context, key string) (*models.Session, error) {
	s, ok := c.lru.Get(key)
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (c *LRUCache) Set(_ context.Context, key string, s models.Session) error {
	c.lru.Add(key, s)
	return nil
}

func (c *LRUCache) Delete(_ context.Context, keys ...string) error {
	for _, key := range keys {
		c.lru.Remove(key)
	}
	return nil
}

func (c *LRUCache) Purge(_ context.Context) error {
	c.lru.Purge()
	return nil
}

var _ Cache = (*LRUCache)(nil)
