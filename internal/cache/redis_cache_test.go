package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// An unreachable server must surface as an error rather than a miss, so the
// caller can log it and fall back to the store.
func TestRedisCacheUnreachable(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = client.Close() })
	c := NewRedisCache(client, "helpdesk:")

	_, ok, err := c.Get(context.Background(), "k")
	require.Error(t, err)
	assert.False(t, ok)
	assert.Contains(t, err.Error(), "redis get k")

	err = c.Set(context.Background(), "k", []byte("v"), time.Second)
	assert.Error(t, err)
}
