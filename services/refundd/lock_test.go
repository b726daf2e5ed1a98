package refundd

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryLockExcludesConcurrentRuns(t *testing.T) {
	lock := NewMemoryLock(0)
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = lock.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = lock.TryAcquire(ctx, "other")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, lock.Release(ctx, "refunds"))
	ok, err = lock.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryLockLeaseExpires(t *testing.T) {
	lock := NewMemoryLock(time.Minute)
	now := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	lock.now = func() time.Time { return now }
	ctx := context.Background()

	ok, err := lock.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(30 * time.Second)
	ok, _ = lock.TryAcquire(ctx, "refunds")
	require.False(t, ok)

	now = now.Add(time.Minute)
	ok, _ = lock.TryAcquire(ctx, "refunds")
	require.True(t, ok)
}
