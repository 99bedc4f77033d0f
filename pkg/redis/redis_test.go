package redis

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/regimelab/backend/pkg/config"
)

func TestNewClient_Disabled(t *testing.T) {
	cfg := &config.Config{
		Redis: config.RedisConfig{
			Enabled: false,
		},
	}

	client, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if client.Enabled() {
		t.Error("Expected client to be disabled")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestDisabledCacheIsAlwaysAMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(Disabled(), "regimelab")

	require.NoError(t, cache.Set(ctx, "k", 1, TTLShort))
	var out int
	found, err := cache.Get(ctx, "k", &out)
	require.NoError(t, err)
	assert.False(t, found)
	assert.NoError(t, cache.Delete(ctx, "k"))
}

func TestGetOrSetCallsFnOnMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(Disabled(), "regimelab")

	calls := 0
	fn := func() (string, error) {
		calls++
		return "computed", nil
	}

	got, hit, err := GetOrSet(ctx, cache, "k", TTLShort, fn)
	require.NoError(t, err)
	assert.Equal(t, "computed", got)
	assert.False(t, hit)
	assert.Equal(t, 1, calls)

	boom := errors.New("boom")
	_, _, err = GetOrSet(ctx, cache, "k", TTLShort, func() (string, error) { return "", boom })
	assert.ErrorIs(t, err, boom)
}

func TestHashKeyIsStable(t *testing.T) {
	a, err := HashKey("cfg", map[string]int{"b": 2, "a": 1})
	require.NoError(t, err)
	b, err := HashKey("cfg", map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)
	c, err := HashKey("cfg2", map[string]int{"a": 1, "b": 2})
	require.NoError(t, err)

	assert.Equal(t, a, b, "map key order must not matter")
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)

	assert.Equal(t, "regime:history:"+a, DetectionKey(a))
	assert.Equal(t, "backtest:result:"+a, BacktestKey(a))
}

func TestRateLimiterDisabledAllowsAll(t *testing.T) {
	rl := NewRateLimiter(Disabled(), "regimelab")
	cfg := APIRateLimit("127.0.0.1", 20, 40)

	assert.Equal(t, "api:127.0.0.1", cfg.Key)
	assert.Equal(t, 40, cfg.Limit)
	assert.Equal(t, time.Second, cfg.Window)

	for i := 0; i < 100; i++ {
		allowed, remaining, err := rl.Allow(context.Background(), cfg)
		require.NoError(t, err)
		assert.True(t, allowed)
		assert.Equal(t, 40, remaining)
	}
}

func TestAPIRateLimitFallbacks(t *testing.T) {
	assert.Equal(t, 5, APIRateLimit("c", 5.9, 0).Limit)
	assert.Equal(t, 1, APIRateLimit("c", 0, 0).Limit)
}

func TestRedisIntegration(t *testing.T) {
	if os.Getenv("REDIS_ENABLED") != "true" {
		t.Skip("REDIS_ENABLED not set, skipping integration test")
	}
	cfg, err := config.Load()
	require.NoError(t, err)

	client, err := New(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	cache := NewCache(client, "regimelab-test")
	require.NoError(t, cache.Set(ctx, "probe", map[string]float64{"x": 1.5}, TTLShort))
	var out map[string]float64
	found, err := cache.Get(ctx, "probe", &out)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1.5, out["x"])
	require.NoError(t, cache.Delete(ctx, "probe"))

	rl := NewRateLimiter(client, "regimelab-test")
	limit := RateLimitConfig{Key: "probe", Limit: 2, Window: time.Second}
	for i := 0; i < 2; i++ {
		allowed, _, err := rl.Allow(ctx, limit)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, _, err := rl.Allow(ctx, limit)
	require.NoError(t, err)
	assert.False(t, allowed)
}
