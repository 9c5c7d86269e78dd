package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNop(t *testing.T) {
	release, err := Nop{}.Acquire(context.Background())
	require.NoError(t, err)
	assert.NoError(t, release(context.Background()))
	assert.NoError(t, release(context.Background()))
}

func TestRedisUnavailable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	l := NewRedisWithClient(client, DefaultKey, time.Minute)
	defer l.Close()

	_, err := l.Acquire(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrHeld)
}

// TestRedisLock_Integration requires a running Redis.
// We skip if connection fails.
func TestRedisLock_Integration(t *testing.T) {
	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skip("Skipping Redis integration test: redis not available")
	}
	key := "briefcheck:test:" + uuid.NewString()
	a := NewRedisWithClient(client, key, time.Minute)
	b := NewRedisWithClient(client, key, time.Minute)
	defer a.Close()

	release, err := a.Acquire(ctx)
	require.NoError(t, err)

	_, err = b.Acquire(ctx)
	assert.ErrorIs(t, err, ErrHeld)

	// A stale holder must not delete someone else's lock.
	require.NoError(t, client.Set(ctx, key, "other", time.Minute).Err())
	require.NoError(t, release(ctx))
	assert.Equal(t, "other", client.Get(ctx, key).Val())

	require.NoError(t, client.Del(ctx, key).Err())
	release, err = b.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, release(ctx))
	assert.Equal(t, int64(0), client.Exists(ctx, key).Val())
}
