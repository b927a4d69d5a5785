package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) (*miniredis.Miniredis, RefreshCache) {
	t.Helper()

	mr := miniredis.RunT(t)

	c, err := NewRedisCache("redis://"+mr.Addr(), "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	return mr, c
}

func TestNewRedisCache_BadURL(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache("not-a-url", "")
	require.Error(t, err)
}

func TestNewRedisCache_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := NewRedisCache("redis://127.0.0.1:1", "")
	require.Error(t, err)
}

func TestIsRevoked_UnknownHash(t *testing.T) {
	t.Parallel()

	_, c := newTestCache(t)

	revoked, err := c.IsRevoked(context.Background(), "no-such-hash")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestMarkRevoked_ThenHit(t *testing.T) {
	t.Parallel()

	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.MarkRevoked(ctx, "hash-1", time.Hour))

	revoked, err := c.IsRevoked(ctx, "hash-1")
	require.NoError(t, err)
	require.True(t, revoked)

	// Ключ лежит под префиксом по умолчанию.
	require.True(t, mr.Exists(DefaultPrefix+"hash-1"))

	// Соседние хэши не задеты.
	revoked, err = c.IsRevoked(ctx, "hash-2")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestMarkRevoked_ExpiresWithTTL(t *testing.T) {
	t.Parallel()

	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.MarkRevoked(ctx, "hash-ttl", time.Minute))

	mr.FastForward(2 * time.Minute)

	revoked, err := c.IsRevoked(ctx, "hash-ttl")
	require.NoError(t, err)
	require.False(t, revoked)
}

func TestMarkRevoked_NonPositiveTTLIsNoop(t *testing.T) {
	t.Parallel()

	mr, c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.MarkRevoked(ctx, "hash-dead", 0))
	require.NoError(t, c.MarkRevoked(ctx, "hash-dead", -time.Minute))

	require.False(t, mr.Exists(DefaultPrefix+"hash-dead"))
}

func TestCustomPrefix(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)

	c, err := NewRedisCache("redis://"+mr.Addr(), "custom:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	require.NoError(t, c.MarkRevoked(context.Background(), "h", time.Hour))
	require.True(t, mr.Exists("custom:h"))
}
