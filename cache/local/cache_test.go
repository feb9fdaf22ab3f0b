package local

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *LocalCache {
	c, err := NewCache(Config{GCInterval: time.Minute})
	require.NoError(t, err)
	t.Cleanup(c.Close)
	return c
}

func TestGetSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "session:abc", "runner", 0))
	v, err := c.Get(ctx, "session:abc")
	require.NoError(t, err)
	assert.Equal(t, "runner", v)

	require.NoError(t, c.Del(ctx, "session:abc"))
	_, err = c.Get(ctx, "session:abc")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTTLExpiry(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "ttl_key", "val", 10*time.Millisecond))
	time.Sleep(20 * time.Millisecond)
	_, err := c.Get(ctx, "ttl_key")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestZSet(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "z", 100, "alice"))
	require.NoError(t, c.ZAdd(ctx, "z", 200, "bob"))
	require.NoError(t, c.ZAdd(ctx, "z", 50, "carol"))
	require.NoError(t, c.ZAdd(ctx, "z", 150, "alice"))

	asc, err := c.ZRange(ctx, "z", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []Member{{"carol", 50}, {"alice", 150}, {"bob", 200}}, asc)

	top, err := c.ZRange(ctx, "z", -2, -1)
	require.NoError(t, err)
	assert.Equal(t, []Member{{"alice", 150}, {"bob", 200}}, top)

	score, err := c.ZScore(ctx, "z", "alice")
	require.NoError(t, err)
	assert.Equal(t, float64(150), score)

	n, _ := c.ZCard(ctx, "z")
	assert.Equal(t, int64(3), n)

	_, err = c.ZScore(ctx, "z", "dave")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestList(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, c.LPush(ctx, "l", "c", "b", "a"))
	items, err := c.LRange(ctx, "l", 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, items)

	require.NoError(t, c.LPush(ctx, "l", "z"))
	require.NoError(t, c.LTrim(ctx, "l", 0, 1))
	items, _ = c.LRange(ctx, "l", 0, -1)
	assert.Equal(t, []string{"z", "a"}, items)
}

func TestBounds(t *testing.T) {
	lo, hi, ok := bounds(5, -2, -1)
	require.True(t, ok)
	assert.Equal(t, int64(3), lo)
	assert.Equal(t, int64(4), hi)

	_, _, ok = bounds(0, 0, -1)
	assert.False(t, ok)
	_, _, ok = bounds(3, 5, 10)
	assert.False(t, ok)
}
