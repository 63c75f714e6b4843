package kvstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brizzai/session-broker/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *RedisStore) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return mr, NewRedisStore(client, "test:")
}

func TestRedisStore_PutGet(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "state-abc", "true", 24*time.Hour))

	value, err := store.Get(ctx, "state-abc")
	require.NoError(t, err)
	assert.Equal(t, "true", value)

	// prefix is applied on the wire
	assert.True(t, mr.Exists("test:state-abc"))
	assert.Equal(t, 24*time.Hour, mr.TTL("test:state-abc"))
}

func TestRedisStore_NoExpiry(t *testing.T) {
	mr, store := newTestRedis(t)

	require.NoError(t, store.Put(context.Background(), "1234", "{}", NoExpiry))
	assert.Equal(t, time.Duration(0), mr.TTL("test:1234"))
}

func TestRedisStore_Expiry(t *testing.T) {
	mr, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "session-x", "1234", time.Minute))
	mr.FastForward(2 * time.Minute)

	_, err := store.Get(ctx, "session-x")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_Delete(t *testing.T) {
	_, store := newTestRedis(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "k", "v", NoExpiry))
	require.NoError(t, store.Delete(ctx, "k"))
	require.NoError(t, store.Delete(ctx, "k"), "deleting a missing key is not an error")

	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRedisStore_NegativeTTL(t *testing.T) {
	_, store := newTestRedis(t)
	err := store.Put(context.Background(), "k", "v", -time.Second)
	assert.Error(t, err)
}

func TestRedisStore_Unavailable(t *testing.T) {
	mr, store := newTestRedis(t)
	mr.Close()

	ctx := context.Background()
	_, err := store.Get(ctx, "k")
	assert.True(t, errors.Is(err, ErrUnavailable))
	assert.ErrorIs(t, store.Put(ctx, "k", "v", NoExpiry), ErrUnavailable)
	assert.ErrorIs(t, store.Ping(ctx), ErrUnavailable)
}

func TestNewRedisClient(t *testing.T) {
	mr := miniredis.RunT(t)

	client, err := NewRedisClient(context.Background(), &config.StoreConfig{
		Addr:        mr.Addr(),
		DialTimeout: time.Second,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	_, err = NewRedisClient(context.Background(), &config.StoreConfig{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
	})
	assert.Error(t, err)
}
