// ABOUTME: Tests for the Redis cache Store against an in-process miniredis server
// ABOUTME: Covers misses, overwrites, and TTL expiry

package cache

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T, ttl time.Duration) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	s := NewRedisStore(RedisOptions{Addr: mr.Addr(), TTL: ttl})
	t.Cleanup(func() { s.Close() })
	return s, mr
}

func TestRedisStore_Miss(t *testing.T) {
	s, _ := newTestRedis(t, 0)
	_, err := s.Get(context.Background(), "messages:nope")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_SetGet(t *testing.T) {
	s, mr := newTestRedis(t, 0)
	ctx := context.Background()

	require.NoError(t, s.Ping(ctx))
	require.NoError(t, s.Set(ctx, "messages:m1", []byte(`{"id":"m1"}`)))

	got, err := s.Get(ctx, "messages:m1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"m1"}`, string(got))

	raw, err := mr.Get("messages:m1")
	require.NoError(t, err)
	assert.Equal(t, `{"id":"m1"}`, raw)
}

func TestRedisStore_TTL(t *testing.T) {
	s, mr := newTestRedis(t, 10*time.Second)
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "k", []byte("v")))
	assert.Equal(t, 10*time.Second, mr.TTL("k"))

	mr.FastForward(11 * time.Second)
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrMiss)
}

func TestRedisStore_Unavailable(t *testing.T) {
	s, mr := newTestRedis(t, 0)
	mr.Close()

	_, err := s.Get(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMiss)
}
