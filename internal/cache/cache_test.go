package cache_test

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvscout/internal/cache"
	"arvscout/internal/cache/cachetest"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time { return c.t }

func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 23, 0, 0, 0, time.UTC)}
}

func TestKeyFromParams_OrderIndependent(t *testing.T) {
	a := map[string]any{"zpid": "123", "count": 25, "nested": map[string]any{"b": 1, "a": 2}}
	b := map[string]any{"nested": map[string]any{"a": 2, "b": 1}, "count": 25, "zpid": "123"}

	ka, err := cache.KeyFromParams(a)
	require.NoError(t, err)
	kb, err := cache.KeyFromParams(b)
	require.NoError(t, err)
	assert.Equal(t, ka, kb)
	assert.Len(t, ka, 64)

	type params struct {
		Zpid  string `json:"zpid"`
		Count int    `json:"count"`
	}
	ks, err := cache.KeyFromParams(params{Zpid: "123", Count: 25})
	require.NoError(t, err)
	km, err := cache.KeyFromParams(map[string]any{"count": 25, "zpid": "123"})
	require.NoError(t, err)
	assert.Equal(t, km, ks)

	kc, err := cache.KeyFromParams(map[string]any{"zpid": "124", "count": 25})
	require.NoError(t, err)
	assert.NotEqual(t, km, kc)
}

func TestCanonicalize(t *testing.T) {
	out, err := cache.Canonicalize(map[string]any{"b": 1.5, "a": []any{"x&y", 2}})
	require.NoError(t, err)
	assert.Equal(t, `{"a":["x&y",2],"b":1.5}`, string(out))

	_, err = cache.Canonicalize(map[string]any{"bad": make(chan int)})
	assert.Error(t, err)
}

func TestResponseCache_RoundTripAndTTL(t *testing.T) {
	clock := newClock()
	store := cache.NewMemoryStore()
	rc := cache.NewResponseCache(store, cache.NamespaceAPI, true, 2*time.Hour, clock.Now, logrus.New())
	ctx := context.Background()
	params := map[string]any{"zpid": "42"}

	_, ok, err := rc.Get(ctx, "property", params)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, rc.Put(ctx, "property", params, map[string]any{"price": 250000, "zpid": "42"}))

	payload, ok, err := rc.Get(ctx, "property", map[string]any{"zpid": "42"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"price":250000,"zpid":"42"}`, string(payload))

	// age equal to the TTL is still a hit
	clock.Advance(2 * time.Hour)
	_, ok, err = rc.Get(ctx, "property", params)
	require.NoError(t, err)
	assert.True(t, ok)

	clock.Advance(time.Second)
	_, ok, err = rc.Get(ctx, "property", params)
	require.NoError(t, err)
	assert.False(t, ok)

	// a fresh write restores the slot
	require.NoError(t, rc.Put(ctx, "property", params, json.RawMessage(`{"zpid":"42","price":1}`)))
	var decoded struct {
		Price int `json:"price"`
	}
	ok, err = rc.GetInto(ctx, "property", params, &decoded)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, decoded.Price)
}

func TestResponseCache_Disabled(t *testing.T) {
	store := cache.NewMemoryStore()
	rc := cache.NewResponseCache(store, cache.NamespaceAPI, false, time.Hour, nil, nil)
	ctx := context.Background()

	require.NoError(t, rc.Put(ctx, "property", map[string]any{"zpid": "1"}, map[string]any{"x": 1}))
	_, ok, err := rc.Get(ctx, "property", map[string]any{"zpid": "1"})
	require.NoError(t, err)
	assert.False(t, ok)

	st, err := store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Entries[cache.NamespaceAPI])
}

func TestResponseCache_NamespacesShareStore(t *testing.T) {
	clock := newClock()
	store := cache.NewMemoryStore()
	api := cache.NewResponseCache(store, cache.NamespaceAPI, true, time.Hour, clock.Now, nil)
	llm := cache.NewResponseCache(store, cache.NamespaceLLM, true, time.Minute, clock.Now, nil)
	ctx := context.Background()
	params := map[string]any{"q": "same"}

	require.NoError(t, api.Put(ctx, "search", params, map[string]any{"from": "api"}))
	require.NoError(t, llm.Put(ctx, "search", params, map[string]any{"from": "llm"}))

	clock.Advance(2 * time.Minute)
	p, ok, err := api.Get(ctx, "search", params)
	require.NoError(t, err)
	require.True(t, ok)
	assert.JSONEq(t, `{"from":"api"}`, string(p))

	_, ok, err = llm.Get(ctx, "search", params)
	require.NoError(t, err)
	assert.False(t, ok, "llm namespace has its own shorter TTL")

	require.NoError(t, llm.Clear(ctx))
	_, ok, err = api.Get(ctx, "search", params)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRateLimiter(t *testing.T) {
	clock := newClock()
	store := cache.NewMemoryStore()
	rl := cache.NewRateLimiter(store, 3, clock.Now, logrus.New())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, rl.Acquire(ctx))
	}
	assert.ErrorIs(t, rl.Acquire(ctx), cache.ErrRateLimitExceeded)

	ok, err := rl.CheckAndIncrement(ctx, 3)
	require.NoError(t, err)
	assert.False(t, ok)

	used, err := rl.Used(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, used)

	// 23:00 UTC plus two hours is a new UTC day with a fresh counter
	clock.Advance(2 * time.Hour)
	assert.Equal(t, "2025-06-02", rl.Today())
	require.NoError(t, rl.Acquire(ctx))
	used, err = rl.Used(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, used)
}

func TestRateLimiter_UsesUTCDay(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	rl := cache.NewRateLimiter(cache.NewMemoryStore(), 1, func() time.Time {
		return time.Date(2025, 6, 1, 21, 0, 0, 0, loc)
	}, nil)
	assert.Equal(t, "2025-06-02", rl.Today())
}

func TestRateLimiter_ZeroLimit(t *testing.T) {
	store := cache.NewMemoryStore()
	rl := cache.NewRateLimiter(store, 0, nil, nil)
	ok, err := rl.CheckAndIncrement(context.Background(), 0)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := rl.Used(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestMemoryStore_Conformance(t *testing.T) {
	cachetest.RunStoreConformance(t, cache.NewMemoryStore())
}

func TestRedisStore_Conformance(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}

	store := cache.NewRedisStore(&redis.Options{Addr: addr, DB: 15})
	defer store.Close()
	ctx := context.Background()
	require.NoError(t, store.Client.FlushDB(ctx).Err())

	cachetest.RunStoreConformance(t, store)
}
