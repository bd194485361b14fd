package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

// Entry represents a cached value with expiration.
type Entry struct {
	Value     []byte
	ExpiresAt time.Time
}

// Memory is an in-process cache with TTL.
type Memory struct {
	mu      sync.RWMutex
	items   map[string]*Entry
	holders int
	now     func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{items: map[string]*Entry{}, now: time.Now}
}

// Set stores a value with the given TTL unless writes are locked.
func (c *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.holders > 0 {
		return nil
	}
	c.items[key] = &Entry{
		Value:     append([]byte(nil), value...),
		ExpiresAt: c.now().Add(ttl),
	}
	return nil
}

// Get retrieves a value if it hasn't expired.
func (c *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, exists := c.items[key]
	if !exists || c.now().After(entry.ExpiresAt) {
		return nil, false, nil
	}
	return entry.Value, true, nil
}

// LockWrites suspends Set until the returned lock is released.
func (c *Memory) LockWrites(context.Context) (*WriteLock, error) {
	c.mu.Lock()
	c.holders++
	c.mu.Unlock()
	return newWriteLock(func(context.Context) error {
		c.mu.Lock()
		defer c.mu.Unlock()
		if c.holders > 0 {
			c.holders--
		}
		return nil
	}), nil
}

// WritesLocked reports whether any write lock is held.
func (c *Memory) WritesLocked(context.Context) (bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.holders > 0, nil
}

// Invalidate removes all items of the given typenames.
func (c *Memory) Invalidate(_ context.Context, lock *WriteLock, typenames ...string) error {
	if lock == nil {
		return ErrLockRequired
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.items {
		for _, typename := range typenames {
			if strings.HasPrefix(key, typenamePrefix(typename)) {
				delete(c.items, key)
				break
			}
		}
	}
	return nil
}
