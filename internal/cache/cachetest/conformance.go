// Package cachetest holds behaviour checks shared by every cache.Store implementation.
package cachetest

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"arvscout/internal/cache"
)

// RunStoreConformance exercises the Store contract against a fresh, empty store.
func RunStoreConformance(t *testing.T, store cache.Store) {
	t.Helper()
	ctx := context.Background()
	stamp := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	t.Run("get missing", func(t *testing.T) {
		e, err := store.Get(ctx, cache.NamespaceAPI, "property", "absent")
		require.NoError(t, err)
		assert.Nil(t, e)
	})

	t.Run("put replaces", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, cache.Entry{
			Namespace: cache.NamespaceAPI, Endpoint: "property", Key: "k1",
			Payload: []byte(`{"v":1}`), StoredAt: stamp,
		}))
		require.NoError(t, store.Put(ctx, cache.Entry{
			Namespace: cache.NamespaceAPI, Endpoint: "property", Key: "k1",
			Payload: []byte(`{"v":2}`), StoredAt: stamp.Add(time.Hour),
		}))

		e, err := store.Get(ctx, cache.NamespaceAPI, "property", "k1")
		require.NoError(t, err)
		require.NotNil(t, e)
		assert.JSONEq(t, `{"v":2}`, string(e.Payload))
		assert.True(t, stamp.Add(time.Hour).Equal(e.StoredAt), "stored_at %v", e.StoredAt)
	})

	t.Run("endpoints and namespaces are separate slots", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, cache.Entry{
			Namespace: cache.NamespaceAPI, Endpoint: "comps", Key: "k1",
			Payload: []byte(`{"comps":[]}`), StoredAt: stamp,
		}))
		require.NoError(t, store.Put(ctx, cache.Entry{
			Namespace: cache.NamespaceLLM, Endpoint: "prompt", Key: "k1",
			Payload: []byte(`{"filters":{}}`), StoredAt: stamp,
		}))

		e, err := store.Get(ctx, cache.NamespaceAPI, "property", "k1")
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":2}`, string(e.Payload))

		e, err = store.Get(ctx, cache.NamespaceLLM, "property", "k1")
		require.NoError(t, err)
		assert.Nil(t, e)

		st, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(2), st.Entries[cache.NamespaceAPI])
		assert.Equal(t, int64(1), st.Entries[cache.NamespaceLLM])
	})

	t.Run("clear one namespace", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, cache.NamespaceLLM))
		e, err := store.Get(ctx, cache.NamespaceLLM, "prompt", "k1")
		require.NoError(t, err)
		assert.Nil(t, e)

		e, err = store.Get(ctx, cache.NamespaceAPI, "comps", "k1")
		require.NoError(t, err)
		assert.NotNil(t, e)
	})

	t.Run("clear all", func(t *testing.T) {
		require.NoError(t, store.Clear(ctx, ""))
		st, err := store.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(0), st.Entries[cache.NamespaceAPI])
	})

	t.Run("counter stops at limit", func(t *testing.T) {
		day := "2025-03-14"
		for i := 0; i < 3; i++ {
			ok, err := store.CheckAndIncrement(ctx, day, 3)
			require.NoError(t, err)
			assert.True(t, ok, "increment %d", i+1)
		}
		ok, err := store.CheckAndIncrement(ctx, day, 3)
		require.NoError(t, err)
		assert.False(t, ok)

		n, err := store.Count(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		n, err = store.Count(ctx, "2025-03-15")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("concurrent increments never exceed limit", func(t *testing.T) {
		day := "2025-03-16"
		const limit = 10
		var wg sync.WaitGroup
		var mu sync.Mutex
		allowed := 0
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := store.CheckAndIncrement(ctx, day, limit)
				if err != nil {
					t.Errorf("check and increment: %v", err)
					return
				}
				if ok {
					mu.Lock()
					allowed++
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.Equal(t, limit, allowed)
		n, err := store.Count(ctx, day)
		require.NoError(t, err)
		assert.Equal(t, limit, n)
	})
}
