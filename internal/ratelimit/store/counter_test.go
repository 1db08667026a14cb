package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInMemoryCounterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 14, 9, 5, 0, 0, time.UTC)
	s := NewInMemoryCounterStore().WithClock(func() time.Time { return now })
	ctx := context.Background()

	for i := int64(1); i <= 3; i++ {
		n, err := s.Incr(ctx, "rate_limit:a:minute:2026-03-14-09-05", 2*time.Minute)
		require.NoError(t, err)
		assert.Equal(t, i, n)
	}

	got, err := s.Get(ctx, "rate_limit:a:minute:2026-03-14-09-05")
	require.NoError(t, err)
	assert.Equal(t, int64(3), got)

	// Past the TTL the key reads as zero and the next Incr restarts it.
	now = now.Add(3 * time.Minute)
	got, err = s.Get(ctx, "rate_limit:a:minute:2026-03-14-09-05")
	require.NoError(t, err)
	assert.Zero(t, got)

	n, err := s.Incr(ctx, "rate_limit:a:minute:2026-03-14-09-05", 2*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestRedisCounterStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	s := NewRedisCounterStore(client)
	ctx := context.Background()

	n, err := s.Incr(ctx, "rate_limit:b:hour:2026-03-14-09", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.Incr(ctx, "rate_limit:b:hour:2026-03-14-09", 2*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	got, err := s.Get(ctx, "rate_limit:b:hour:2026-03-14-09")
	require.NoError(t, err)
	assert.Equal(t, int64(2), got)

	// Unknown keys read as zero.
	got, err = s.Get(ctx, "rate_limit:missing")
	require.NoError(t, err)
	assert.Zero(t, got)

	// The TTL expires the key.
	mr.FastForward(3 * time.Hour)
	got, err = s.Get(ctx, "rate_limit:b:hour:2026-03-14-09")
	require.NoError(t, err)
	assert.Zero(t, got)
}
