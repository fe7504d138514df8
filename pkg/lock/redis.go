package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	defaultLockTTL       = 30 * time.Second
	defaultRetryInterval = 50 * time.Millisecond
	releaseTimeout       = 5 * time.Second
)

// redisStore defines the operations used by Redis.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Del(ctx context.Context, keys ...string) error
}

// Redis implements Locker across processes using SETNX + TTL with an owner token.
// The TTL bounds how long a crashed holder can block a key.
type Redis struct {
	client        redisStore
	prefix        string
	ttl           time.Duration
	retryInterval time.Duration
	logger        *zap.Logger
}

// NewRedis constructs a Redis-backed locker. Keys are stored as prefix + key.
func NewRedis(client redisStore, prefix string, ttl time.Duration, logger *zap.Logger) (*Redis, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Redis{
		client:        client,
		prefix:        prefix,
		ttl:           ttl,
		retryInterval: defaultRetryInterval,
		logger:        logger,
	}, nil
}

// Lock polls SETNX until it owns the key or ctx is done
func (r *Redis) Lock(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, errors.New("lock key is required")
	}

	fullKey := r.prefix + key
	owner := uuid.NewString()

	for {
		ok, err := r.client.SetNX(ctx, fullKey, owner, r.ttl)
		if err != nil {
			return nil, fmt.Errorf("failed to acquire lock %s: setnx: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("failed to acquire lock %s: %w", key, ctx.Err())
		case <-time.After(r.retryInterval):
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
			defer cancel()
			if err := r.release(releaseCtx, fullKey, owner); err != nil {
				r.logger.Warn("Failed to release lock", zap.String("key", fullKey), zap.Error(err))
			}
		})
	}, nil
}

// release frees the lock only if the owner value still matches
func (r *Redis) release(ctx context.Context, fullKey, owner string) error {
	value, err := r.client.Get(ctx, fullKey)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("read lock owner: %w", err)
	}
	if value != owner {
		return nil
	}
	if err := r.client.Del(ctx, fullKey); err != nil {
		return fmt.Errorf("delete lock: %w", err)
	}
	return nil
}
