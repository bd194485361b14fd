package service

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/resource-queue/internal/cache"
)

// viewCache wraps the response cache. A nil cache disables caching; cache
// failures are logged and never fail the request.
type viewCache struct {
	cache  cache.Cache
	ttl    time.Duration
	logger *zap.Logger
}

func newViewCache(c cache.Cache, ttl time.Duration, logger *zap.Logger) *viewCache {
	return &viewCache{cache: c, ttl: ttl, logger: logger}
}

func (v *viewCache) enabled() bool {
	return v != nil && v.cache != nil && v.ttl > 0
}

func (v *viewCache) get(ctx context.Context, key string, dst any) bool {
	if !v.enabled() {
		return false
	}
	raw, ok, err := v.cache.Get(ctx, key)
	if err != nil {
		v.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return false
	}
	if !ok {
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		v.logger.Warn("cache entry undecodable", zap.String("key", key), zap.Error(err))
		return false
	}
	return true
}

func (v *viewCache) set(ctx context.Context, key string, value any) {
	if !v.enabled() {
		return
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := v.cache.Set(ctx, key, raw, v.ttl); err != nil {
		v.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

// lock takes the cache write lock. The returned release func is always safe to call.
func (v *viewCache) lock(ctx context.Context) (*cache.WriteLock, func()) {
	if v == nil || v.cache == nil {
		return nil, func() {}
	}
	lock, err := v.cache.LockWrites(ctx)
	if err != nil {
		v.logger.Warn("cache write lock failed", zap.Error(err))
		return nil, func() {}
	}
	return lock, func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil {
			v.logger.Warn("cache write lock release failed", zap.Error(err))
		}
	}
}

// invalidate drops the typenames while holding lock. It returns false when
// nothing could be invalidated.
func (v *viewCache) invalidate(ctx context.Context, lock *cache.WriteLock, typenames ...string) bool {
	if v == nil || v.cache == nil || lock == nil {
		return false
	}
	if err := v.cache.Invalidate(ctx, lock, typenames...); err != nil {
		v.logger.Warn("cache invalidation failed", zap.Strings("typenames", typenames), zap.Error(err))
		return false
	}
	return true
}
