package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLockExcludesOtherOwners(t *testing.T) {
	db := setupStoreDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	a, err := NewLock(db, "owner-a", time.Minute, clock)
	require.NoError(t, err)
	b, err := NewLock(db, "owner-b", time.Minute, clock)
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.False(t, ok)

	holder, held, err := b.Holder(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, held)
	require.Equal(t, "owner-a", holder)

	// Releasing a lease held by someone else is a no-op.
	require.NoError(t, b.Release(ctx, "refunds"))
	ok, err = b.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, a.Release(ctx, "refunds"))
	ok, err = b.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)
}

func TestLockLeaseExpires(t *testing.T) {
	db := setupStoreDB(t)
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	a, err := NewLock(db, "owner-a", time.Minute, func() time.Time { return now })
	require.NoError(t, err)
	later := now.Add(2 * time.Minute)
	b, err := NewLock(db, "owner-b", time.Minute, func() time.Time { return later })
	require.NoError(t, err)
	ctx := context.Background()

	ok, err := a.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = b.TryAcquire(ctx, "refunds")
	require.NoError(t, err)
	require.True(t, ok, "expired lease should be taken over")
}

func TestLockRequiresOwner(t *testing.T) {
	db := setupStoreDB(t)
	_, err := NewLock(db, " ", time.Minute, nil)
	require.Error(t, err)
}
