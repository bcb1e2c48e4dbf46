package redismanager

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trunov/thumbnailer/internal/logger"
	"github.com/trunov/thumbnailer/internal/redisholder"
)

// Runs against a real Redis when TEST_REDIS_ADDR is set.
func newTestManager(t *testing.T) (*Manager, redis.UniversalClient) {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	cl := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = cl.Close() })
	return NewManager(redisholder.NewHolder(cl), logger.Discard()), cl
}

func TestLease_Exclusive(t *testing.T) {
	m, cl := newTestManager(t)
	ctx := context.Background()
	key := "thumbnailer:test:" + uuid.NewString()

	first, err := m.Acquire(ctx, key, MinTTL)
	require.NoError(t, err)

	_, err = m.Acquire(ctx, key, MinTTL)
	assert.ErrorIs(t, err, ErrLeaseHeld)

	// refreshed past its original ttl
	time.Sleep(MinTTL + 1500*time.Millisecond)
	ttl, err := cl.PTTL(ctx, key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	require.NoError(t, first.Release(ctx))
	require.NoError(t, first.Release(ctx))

	second, err := m.Acquire(ctx, key, MinTTL)
	require.NoError(t, err)
	require.NoError(t, second.Release(ctx))
}

func TestLease_Lost(t *testing.T) {
	m, cl := newTestManager(t)
	ctx := context.Background()
	key := "thumbnailer:test:" + uuid.NewString()

	l, err := m.Acquire(ctx, key, MinTTL)
	require.NoError(t, err)

	require.NoError(t, cl.Set(ctx, key, "someone-else", time.Minute).Err())

	select {
	case <-l.Lost():
	case <-time.After(2 * MinTTL):
		t.Fatal("lease loss not detected")
	}

	require.NoError(t, l.Release(ctx))
	v, err := cl.Get(ctx, key).Result()
	require.NoError(t, err)
	assert.Equal(t, "someone-else", v)
	_ = cl.Del(ctx, key)
}

func TestAcquire_RejectsShortTTL(t *testing.T) {
	// never dialed: the ttl check comes first
	cl := redis.NewClient(&redis.Options{Addr: "127.0.0.1:0"})
	defer cl.Close()
	m := NewManager(redisholder.NewHolder(cl), logger.Discard())

	for _, ttl := range []time.Duration{0, -time.Second, time.Second, MinTTL - time.Millisecond} {
		l, err := m.Acquire(context.Background(), "thumbnailer:consumer", ttl)
		assert.Nil(t, l)
		assert.ErrorIs(t, err, ErrLeaseTTL, "ttl %s", ttl)
	}
}
