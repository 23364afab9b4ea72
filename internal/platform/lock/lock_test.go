package lock_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/internal/shared"
)

func newLocker(t *testing.T) *lock.Locker {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return lock.New(client, time.Minute)
}

func TestWithLockRejectsConcurrentHolder(t *testing.T) {
	locker := newLocker(t)
	ctx := context.Background()
	key := shared.TenantLockKey("merge", 7)

	err := locker.WithLock(ctx, key, func(ctx context.Context) error {
		inner := locker.WithLock(ctx, key, func(context.Context) error { return nil })
		require.ErrorIs(t, inner, lock.ErrLocked)
		require.ErrorIs(t, inner, shared.ErrConflict)
		return nil
	})
	require.NoError(t, err)
}

func TestWithLockReleasesAfterRun(t *testing.T) {
	locker := newLocker(t)
	ctx := context.Background()
	key := shared.TenantLockKey("recompute", 1)
	boom := errors.New("boom")

	require.ErrorIs(t, locker.WithLock(ctx, key, func(context.Context) error { return boom }), boom)

	ran := false
	require.NoError(t, locker.WithLock(ctx, key, func(context.Context) error {
		ran = true
		return nil
	}))
	require.True(t, ran)
}
