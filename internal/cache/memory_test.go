// ABOUTME: Tests for the in-memory cache Store
// ABOUTME: Validates TTL expiration, LRU eviction, copying, and concurrency safety

package cache

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_GetMiss(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()

	_, err := c.Get(context.Background(), "never-set")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestMemoryStore_SetThenGet(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", []byte("v1")))
	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Overwrite
	require.NoError(t, c.Set(ctx, "k", []byte("v2")))
	got, err = c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
	assert.Equal(t, 1, c.Len())
}

func TestMemoryStore_Expiry(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	now = now.Add(59 * time.Second)
	_, err := c.Get(ctx, "k")
	require.NoError(t, err)

	now = now.Add(2 * time.Second)
	_, err = c.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)

	c.runCleanup()
	assert.Equal(t, 0, c.Len())
}

func TestMemoryStore_ZeroTTLNeverExpires(t *testing.T) {
	c := NewMemoryStore(0, 10)
	defer c.Close()
	ctx := context.Background()

	now := time.Now()
	c.now = func() time.Time { return now }
	require.NoError(t, c.Set(ctx, "k", []byte("v")))

	now = now.Add(24 * time.Hour)
	_, err := c.Get(ctx, "k")
	assert.NoError(t, err)
}

func TestMemoryStore_EvictsLeastRecentlyUsed(t *testing.T) {
	c := NewMemoryStore(time.Minute, 3)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "a", []byte("1")))
	require.NoError(t, c.Set(ctx, "b", []byte("2")))
	require.NoError(t, c.Set(ctx, "c", []byte("3")))

	// Touch "a" so "b" becomes the oldest
	_, err := c.Get(ctx, "a")
	require.NoError(t, err)

	require.NoError(t, c.Set(ctx, "d", []byte("4")))

	_, err = c.Get(ctx, "b")
	assert.ErrorIs(t, err, ErrMiss)
	for _, k := range []string{"a", "c", "d"} {
		_, err := c.Get(ctx, k)
		assert.NoError(t, err, k)
	}
}

func TestMemoryStore_ReturnsCopies(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	defer c.Close()
	ctx := context.Background()

	value := []byte("abc")
	require.NoError(t, c.Set(ctx, "k", value))
	value[0] = 'z'

	got, err := c.Get(ctx, "k")
	require.NoError(t, err)
	got[1] = 'z'

	again, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), again)
}

func TestMemoryStore_CloseIdempotent(t *testing.T) {
	c := NewMemoryStore(time.Minute, 10)
	assert.NoError(t, c.Close())
	assert.NoError(t, c.Close())
}

func TestMemoryStore_Concurrent(t *testing.T) {
	c := NewMemoryStore(time.Minute, 50)
	defer c.Close()
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				key := fmt.Sprintf("k-%d", (i*j)%80)
				_ = c.Set(ctx, key, []byte(key))
				_, _ = c.Get(ctx, key)
			}
		}(i)
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 50)
}
