package rediscache_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/maendeleo/core"
	"github.com/trezcool/maendeleo/storage/cache/redis"
)

// The tests run against the server at TEST_REDIS_ADDRESS and are skipped without one.
func setup(t *testing.T) *rediscache.StructureCache {
	addr := os.Getenv("TEST_REDIS_ADDRESS")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDRESS not set")
	}
	client := rediscache.NewClient(core.RedisConfig{Address: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())
	return rediscache.NewStructureCache(client, time.Minute)
}

func TestStructureCache(t *testing.T) {
	c := setup(t)
	ctx := context.Background()
	c1, c2, c3 := uuid.NewString(), uuid.NewString(), uuid.NewString()

	require.NoError(t, c.Set(ctx, map[string]int{c1: 10, c2: 0}))
	got, err := c.Get(ctx, []string{c1, c2, c3})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{c1: 10, c2: 0}, got)

	require.NoError(t, c.Invalidate(ctx, c1))
	got, err = c.Get(ctx, []string{c1, c2})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{c2: 0}, got)

	require.NoError(t, c.Invalidate(ctx))
	got, err = c.Get(ctx, []string{c2})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStructureCache_unavailable(t *testing.T) {
	client := rediscache.NewClient(core.RedisConfig{Address: "127.0.0.1:1"})
	defer func() { _ = client.Close() }()
	c := rediscache.NewStructureCache(client, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := c.Get(ctx, []string{"c1"})
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}
