package app

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/Meet/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiterWindow(t *testing.T) {
	rl := NewRateLimiter[string](2, 10*time.Second)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("a"))
	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	assert.True(t, rl.Allow("b"), "keys are independent")

	now = now.Add(11 * time.Second)
	assert.True(t, rl.Allow("a"))

	assert.True(t, rl.Allow("a"))
	assert.False(t, rl.Allow("a"))
	rl.Forget("a")
	assert.True(t, rl.Allow("a"))
}

func TestRateLimiterDisabled(t *testing.T) {
	rl := NewRateLimiter[int](0, time.Second)
	for range 100 {
		require.True(t, rl.Allow(1))
	}
	var nilLimiter *RateLimiter[int]
	assert.True(t, nilLimiter.Allow(1))
	nilLimiter.Forget(1)
}

func TestRegistryBindCancel(t *testing.T) {
	reg := NewRegistry()
	sess := core.NewSession("s1", nopConn{})
	ctx, cancel := context.WithCancel(context.Background())
	reg.Bind(sess, cancel)

	got, ok := reg.GetSession("s1")
	require.True(t, ok)
	assert.Same(t, sess, got)
	assert.Equal(t, 1, reg.Count())

	_, _, ok = reg.RoomOf("s1")
	assert.False(t, ok)
	sess.Bind("r1", "alice", "Alice")
	roomID, _, ok := reg.RoomOf("s1")
	assert.True(t, ok)
	assert.EqualValues(t, "r1", roomID)

	assert.True(t, reg.Cancel("s1"))
	assert.Error(t, ctx.Err())
	assert.False(t, reg.Cancel("s2"))

	assert.True(t, reg.Unbind("s1"))
	assert.False(t, reg.Unbind("s1"))
	assert.Equal(t, 0, reg.Count())
}
