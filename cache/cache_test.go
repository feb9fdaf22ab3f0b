package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCache_Local(t *testing.T) {
	c, err := NewCache(Config{})
	require.NoError(t, err)
	defer c.Close()
	ctx := context.Background()

	require.NoError(t, c.ZAdd(ctx, "fastest", 900_000, "b"))
	require.NoError(t, c.ZAdd(ctx, "fastest", 600_000, "a"))
	top, err := c.ZRange(ctx, "fastest", 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []Member{{Member: "a", Score: 600_000}}, top)

	score, err := c.ZScore(ctx, "fastest", "b")
	require.NoError(t, err)
	assert.Equal(t, float64(900_000), score)

	_, err = c.Get(ctx, "missing")
	assert.True(t, IsNotFound(err))
}

func TestNewPubSub_Local(t *testing.T) {
	ps, err := NewPubSub(Config{LocalPubSubBuf: 8})
	require.NoError(t, err)
	ctx := context.Background()

	ch, cancel, err := ps.Subscribe(ctx, "session:x")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, ps.Publish(ctx, "session:x", `{"type":"tick"}`))
	select {
	case msg := <-ch:
		assert.Equal(t, "session:x", msg.Channel)
		assert.JSONEq(t, `{"type":"tick"}`, msg.Payload)
	case <-time.After(time.Second):
		t.Fatal("no message")
	}
}
