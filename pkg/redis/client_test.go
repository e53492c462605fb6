package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Adithya-Monish-Kumar-K/wikisearch/pkg/config"
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("SP_REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	c, err := NewClient(context.Background(), config.RedisConfig{Addr: addr, DB: 15, PoolSize: 2})
	if err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestJSONRoundTripAndFlush(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()

	type row struct{ ID, Title string }
	want := []row{{"12", "Cat"}, {"7", "Dog"}}
	require.NoError(t, c.SetJSON(ctx, "search:test:a", want, time.Minute))
	require.NoError(t, c.SetJSON(ctx, "search:test:b", want, time.Minute))

	var got []row
	found, err := c.GetJSON(ctx, "search:test:a", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, want, got)

	n, err := c.FlushByPrefix(ctx, "search:test:")
	require.NoError(t, err)
	assert.EqualValues(t, 2, n)

	found, err = c.GetJSON(ctx, "search:test:a", &got)
	require.NoError(t, err)
	assert.False(t, found)
}
