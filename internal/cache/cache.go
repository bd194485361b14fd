// Package cache stores rendered read views keyed by typename and id. Bulk
// mutations take a write lock that suspends cache writes until released, so
// views computed from pre-mutation state cannot be written back after an
// invalidation.
package cache

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Typenames of cached views.
const (
	TypeUser         = "User"
	TypePublicUser   = "PublicUser"
	TypeResourceCard = "ResourceCard"
	TypeResourceView = "ResourceView"
)

// ErrLockRequired is returned when Invalidate is called without a held write lock.
var ErrLockRequired = errors.New("cache write lock required")

// Cache is a typed view cache with a global write lock.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// Set is skipped while any write lock is held.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	LockWrites(ctx context.Context) (*WriteLock, error)
	Invalidate(ctx context.Context, lock *WriteLock, typenames ...string) error
	WritesLocked(ctx context.Context) (bool, error)
}

// Key builds the cache key of a view.
func Key(typename, id string) string {
	return typename + ":" + id
}

func typenamePrefix(typename string) string {
	return typename + ":"
}

// WriteLock is a held cache write lock. Release is idempotent.
type WriteLock struct {
	once    sync.Once
	release func(context.Context) error
	err     error
}

func newWriteLock(release func(context.Context) error) *WriteLock {
	return &WriteLock{release: release}
}

// Release gives the lock back. Only the first call has an effect.
func (l *WriteLock) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	l.once.Do(func() {
		l.err = l.release(ctx)
	})
	return l.err
}

// Scope narrows a typename to one entity, so that Invalidate(lock, Scope(t, id))
// drops only that entity's views. Keys built with Key(Scope(t, id), sub) fall
// under both the scope and the typename.
func Scope(typename, id string) string {
	return typename + ":" + id
}
