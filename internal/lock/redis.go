package lock

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	"github.com/redis/go-redis/v9"
)

type RedisOptions struct {
	// Prefix is prepended to every key, e.g. "ledger:lock:account:".
	Prefix string
	// Expiry bounds how long a crashed holder can block an account.
	Expiry time.Duration
	// Tries is the number of acquisition attempts per key.
	Tries int
	// RetryDelay is the pause between attempts.
	RetryDelay time.Duration
}

func DefaultRedisOptions() RedisOptions {
	return RedisOptions{
		Prefix:     "ledger:lock:account:",
		Expiry:     10 * time.Second,
		Tries:      20,
		RetryDelay: 50 * time.Millisecond,
	}
}

// Redis is a Locker shared by every service instance, built on the Redlock
// algorithm.
type Redis struct {
	rs     *redsync.Redsync
	opts   RedisOptions
	logger *slog.Logger
}

func NewRedis(client redis.UniversalClient, opts RedisOptions, logger *slog.Logger) *Redis {
	if logger == nil {
		logger = slog.Default()
	}
	return &Redis{
		rs:     redsync.New(goredis.NewPool(client)),
		opts:   opts,
		logger: logger,
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	ordered := orderedKeys(keys)
	held := make([]*redsync.Mutex, 0, len(ordered))

	for _, key := range ordered {
		m := r.rs.NewMutex(r.opts.Prefix+key,
			redsync.WithExpiry(r.opts.Expiry),
			redsync.WithTries(r.opts.Tries),
			redsync.WithRetryDelay(r.opts.RetryDelay),
		)
		if err := m.LockContext(ctx); err != nil {
			r.unlockAll(held)
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		held = append(held, m)
	}

	var once sync.Once
	return func() {
		once.Do(func() { r.unlockAll(held) })
	}, nil
}

func (r *Redis) unlockAll(held []*redsync.Mutex) {
	// Release must not depend on the caller's context, which may already be
	// cancelled by the time the operation finishes.
	ctx, cancel := context.WithTimeout(context.Background(), r.opts.Expiry)
	defer cancel()

	for i := len(held) - 1; i >= 0; i-- {
		ok, err := held[i].UnlockContext(ctx)
		if err != nil || !ok {
			r.logger.Warn("Failed to release account lock", "lock", held[i].Name(), "error", err)
		}
	}
}
