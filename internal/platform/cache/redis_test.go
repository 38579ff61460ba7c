package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cachedValue struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestJSONFetchPopulatesAndReuses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewJSON(client, "test", time.Minute)
	ctx := context.Background()

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return cachedValue{Name: "hall", Count: calls}, nil
	}

	var first cachedValue
	require.NoError(t, c.Fetch(ctx, c.Key("a"), &first, loader))
	assert.Equal(t, 1, first.Count)
	assert.True(t, mr.Exists("test:a"))

	var second cachedValue
	require.NoError(t, c.Fetch(ctx, c.Key("a"), &second, loader))
	assert.Equal(t, 1, second.Count)
	assert.Equal(t, 1, calls)

	require.NoError(t, c.Invalidate(ctx, c.Key("a")))
	var third cachedValue
	require.NoError(t, c.Fetch(ctx, c.Key("a"), &third, loader))
	assert.Equal(t, 2, third.Count)
}

func TestJSONFetchExpires(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	c := NewJSON(client, "", 30*time.Second)

	calls := 0
	loader := func(context.Context) (any, error) {
		calls++
		return cachedValue{Count: calls}, nil
	}
	var v cachedValue
	require.NoError(t, c.Fetch(context.Background(), "k", &v, loader))
	mr.FastForward(31 * time.Second)
	require.NoError(t, c.Fetch(context.Background(), "k", &v, loader))
	assert.Equal(t, 2, v.Count)
}

func TestJSONFetchWithoutClientCallsLoader(t *testing.T) {
	var c *JSON
	var v cachedValue
	err := c.Fetch(context.Background(), "k", &v, func(context.Context) (any, error) {
		return cachedValue{Name: "direct"}, nil
	})
	require.NoError(t, err)
	assert.Equal(t, "direct", v.Name)

	loaderErr := errors.New("boom")
	err = c.Fetch(context.Background(), "k", &v, func(context.Context) (any, error) {
		return nil, loaderErr
	})
	assert.ErrorIs(t, err, loaderErr)
}
