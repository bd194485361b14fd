package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	redisKeyPrefix = "cache:"
	redisLockKey   = "cache-write-lock"
	redisScanBatch = 200
	defaultLockTTL = 30 * time.Second
)

// Redis is a cache shared by all API instances. The write lock is a counter
// with a TTL so a crashed holder cannot block writes forever.
type Redis struct {
	client  redis.UniversalClient
	lockTTL time.Duration
}

// NewRedis constructs a Redis-backed cache.
func NewRedis(client redis.UniversalClient, lockTTL time.Duration) *Redis {
	if lockTTL <= 0 {
		lockTTL = defaultLockTTL
	}
	return &Redis{client: client, lockTTL: lockTTL}
}

func (c *Redis) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return value, true, nil
}

func (c *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	locked, err := c.WritesLocked(ctx)
	if err != nil || locked {
		return err
	}
	return c.client.Set(ctx, redisKeyPrefix+key, value, ttl).Err()
}

func (c *Redis) LockWrites(ctx context.Context) (*WriteLock, error) {
	pipe := c.client.TxPipeline()
	pipe.Incr(ctx, redisLockKey)
	pipe.PExpire(ctx, redisLockKey, c.lockTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}
	return newWriteLock(func(ctx context.Context) error {
		remaining, err := c.client.Decr(ctx, redisLockKey).Result()
		if err != nil {
			return err
		}
		if remaining <= 0 {
			return c.client.Del(ctx, redisLockKey).Err()
		}
		return nil
	}), nil
}

func (c *Redis) WritesLocked(ctx context.Context) (bool, error) {
	holders, err := c.client.Get(ctx, redisLockKey).Int64()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return holders > 0, nil
}

func (c *Redis) Invalidate(ctx context.Context, lock *WriteLock, typenames ...string) error {
	if lock == nil {
		return ErrLockRequired
	}
	for _, typename := range typenames {
		iter := c.client.Scan(ctx, 0, redisKeyPrefix+typenamePrefix(typename)+"*", redisScanBatch).Iterator()
		var batch []string
		for iter.Next(ctx) {
			batch = append(batch, iter.Val())
			if len(batch) >= redisScanBatch {
				if err := c.client.Del(ctx, batch...).Err(); err != nil {
					return err
				}
				batch = batch[:0]
			}
		}
		if err := iter.Err(); err != nil {
			return err
		}
		if len(batch) > 0 {
			if err := c.client.Del(ctx, batch...).Err(); err != nil {
				return err
			}
		}
	}
	return nil
}
