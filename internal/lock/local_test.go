package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	ok, value, err := l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotEmpty(t, value)

	ok, _, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.False(t, ok, "held lock must not be acquired twice")

	assert.ErrorIs(t, l.Unlock(ctx, "sweep", "someone-else"), ErrNotOwner)
	require.NoError(t, l.Unlock(ctx, "sweep", value))

	ok, _, err = l.TryLock(ctx, "sweep", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalLockerExpires(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, time.October, 19, 9, 0, 0, 0, time.UTC)
	l := NewLocalLocker()
	l.now = func() time.Time { return now }

	ok, first, err := l.TryLock(ctx, "generate", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	now = now.Add(2 * time.Minute)
	ok, second, err := l.TryLock(ctx, "generate", time.Minute)
	require.NoError(t, err)
	require.True(t, ok, "expired lock is taken over")

	assert.ErrorIs(t, l.Unlock(ctx, "generate", first), ErrNotOwner)
	assert.NoError(t, l.Unlock(ctx, "generate", second))
}
