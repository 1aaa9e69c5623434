package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pelmog/zigi-amazon-mcp/internal/clock"
	"github.com/Pelmog/zigi-amazon-mcp/internal/config"
)

func TestAdmit_SaturationScenarioS4(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{}, fake)

	admitted := 0
	rejected := 0
	for i := 0; i < 31; i++ {
		ok, retryAfter := l.Admit("/orders/v0/orders")
		if ok {
			admitted++
		} else {
			rejected++
			assert.GreaterOrEqual(t, retryAfter, time.Duration(0))
		}
	}
	assert.Equal(t, 20, admitted)
	assert.Equal(t, 11, rejected)
}

func TestAdmit_RefillsOverTime(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 5, Capacity: 10}}, fake)

	for i := 0; i < 10; i++ {
		ok, _ := l.Admit("/some/other/path")
		require.True(t, ok)
	}
	ok, retryAfter := l.Admit("/some/other/path")
	require.False(t, ok)
	require.Greater(t, retryAfter, time.Duration(0))

	fake.Advance(1 * time.Second)
	ok, _ = l.Admit("/some/other/path")
	assert.True(t, ok)
}

func TestAdmit_TokensNeverExceedCapacity(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{Default: config.BucketConfig{RatePerSecond: 5, Capacity: 10}}, fake)

	fake.Advance(1 * time.Hour) // huge elapsed time before first admit
	for i := 0; i < 10; i++ {
		ok, _ := l.Admit("/some/path")
		assert.True(t, ok)
	}
	ok, _ := l.Admit("/some/path")
	assert.False(t, ok, "capacity must clamp even after a long idle period")
}

func TestAdmit_PathParamPrefixMatches(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{}, fake)

	ok, _ := l.Admit("/orders/v0/orders/123-456/orderItems")
	assert.True(t, ok)

	key, cfg := l.keyFor("/orders/v0/orders/123-456/orderItems")
	assert.Equal(t, "/orders/v0/orders/{id}/orderItems", key)
	assert.Equal(t, 30.0, cfg.Capacity)
}

func TestAdmit_UnknownPathUsesDefault(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{}, fake)
	key, cfg := l.keyFor("/some/unrelated/endpoint")
	assert.Equal(t, "default", key)
	assert.Equal(t, defaultBucketConfig.Capacity, cfg.Capacity)
}

func TestAdmit_PrefixOverrideFromConfig(t *testing.T) {
	fake := clock.NewFake(time.Now())
	l := New(config.RateLimitConfig{
		Prefixes: map[string]config.BucketConfig{
			"/feeds/2021-06-30/feeds": {RatePerSecond: 1, Capacity: 2},
		},
	}, fake)

	ok1, _ := l.Admit("/feeds/2021-06-30/feeds")
	ok2, _ := l.Admit("/feeds/2021-06-30/feeds")
	ok3, _ := l.Admit("/feeds/2021-06-30/feeds")
	assert.True(t, ok1)
	assert.True(t, ok2)
	assert.False(t, ok3)
}
