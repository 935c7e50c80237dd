package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/domain"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestLockManager(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	lm := NewLockManager()
	lm.now = c.now
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "pay:s", time.Second)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "pay:s", time.Second)
	assert.ErrorIs(t, err, domain.ErrLockHeld)

	c.t = c.t.Add(2 * time.Second)
	fresh, err := lm.Acquire(ctx, "pay:s", time.Minute)
	require.NoError(t, err)

	stale()
	_, err = lm.Acquire(ctx, "pay:s", time.Minute)
	assert.ErrorIs(t, err, domain.ErrLockHeld, "an expired holder cannot release its successor")

	fresh()
	fresh()
	again, err := lm.Acquire(ctx, "pay:s", time.Minute)
	require.NoError(t, err)
	again()
}

func TestRateLimiter(t *testing.T) {
	c := &clock{t: time.Unix(1000, 0)}
	rl := NewRateLimiter()
	rl.now = c.now
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		ok, err := rl.Allow(ctx, "ip", 2, time.Minute)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, _ := rl.Allow(ctx, "ip", 2, time.Minute)
	assert.False(t, ok)

	ok, _ = rl.Allow(ctx, "other", 2, time.Minute)
	assert.True(t, ok)

	c.t = c.t.Add(61 * time.Second)
	ok, _ = rl.Allow(ctx, "ip", 2, time.Minute)
	assert.True(t, ok)
}
