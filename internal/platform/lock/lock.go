// Package lock provides Redis-backed mutual exclusion for maintenance runs.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"

	"github.com/odyssey-erp/gstbilling/internal/shared"
)

// ErrLocked is returned when another holder owns the key.
var ErrLocked = fmt.Errorf("lock held by another run: %w", shared.ErrConflict)

// DefaultTTL bounds how long a crashed holder can block a key.
const DefaultTTL = 5 * time.Minute

// Locker obtains short-lived Redis locks and keeps them alive while held.
type Locker struct {
	client *redislock.Client
	ttl    time.Duration
}

// New constructs Locker.
func New(client redislock.RedisClient, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Locker{client: redislock.New(client), ttl: ttl}
}

// WithLock runs fn while holding key. The lock is refreshed at half its TTL
// and released when fn returns. A held key fails fast with ErrLocked.
func (l *Locker) WithLock(ctx context.Context, key string, fn func(context.Context) error) error {
	held, err := l.client.Obtain(ctx, key, l.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return fmt.Errorf("%w: %s", ErrLocked, key)
	}
	if err != nil {
		return fmt.Errorf("platform/lock: obtain %s: %w", key, err)
	}
	defer func() {
		_ = held.Release(context.WithoutCancel(ctx))
	}()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go l.keepAlive(runCtx, held)

	return fn(runCtx)
}

func (l *Locker) keepAlive(ctx context.Context, held *redislock.Lock) {
	ticker := time.NewTicker(l.ttl / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := held.Refresh(ctx, l.ttl, nil); err != nil {
				return
			}
		}
	}
}
