package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iho/loanledger/internal/domain"
)

func TestCache_SetGetExpire(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cache.SetClock(func() time.Time { return now })

	require.NoError(t, cache.Set(ctx, "nonce", []byte("abc"), time.Minute))

	got, err := cache.Get(ctx, "nonce")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(got))

	got[0] = 'x'
	again, err := cache.Get(ctx, "nonce")
	require.NoError(t, err)
	assert.Equal(t, "abc", string(again), "callers must not alias stored bytes")

	now = now.Add(time.Minute)
	_, err = cache.Get(ctx, "nonce")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCache_Delete(t *testing.T) {
	cache := NewCache()
	ctx := context.Background()

	require.NoError(t, cache.Set(ctx, "k", []byte("v"), time.Hour))
	require.NoError(t, cache.Delete(ctx, "k"))

	_, err := cache.Get(ctx, "k")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
