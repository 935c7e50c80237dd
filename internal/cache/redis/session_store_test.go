package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T) (*Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), PoolSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c, mr
}

func TestSessionStore_GetMissing(t *testing.T) {
	c, _ := newTestClient(t)
	store := NewSessionStore(c, time.Hour)

	val, ok, err := store.Get(context.Background(), "s1:canMakePaymentCache")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, val)
}

func TestSessionStore_SetOnceWritesOnlyFirstValue(t *testing.T) {
	c, _ := newTestClient(t)
	store := NewSessionStore(c, time.Hour)
	ctx := context.Background()

	wrote, err := store.SetOnce(ctx, "s1:k", []byte("true"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = store.SetOnce(ctx, "s1:k", []byte("false"))
	require.NoError(t, err)
	assert.False(t, wrote)

	val, ok, err := store.Get(ctx, "s1:k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", string(val))
}

func TestSessionStore_EntriesExpireWithSession(t *testing.T) {
	c, mr := newTestClient(t)
	store := NewSessionStore(c, time.Minute)
	ctx := context.Background()

	_, err := store.SetOnce(ctx, "s1:k", []byte("true"))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, mr.TTL("session:s1:k"))

	mr.FastForward(2 * time.Minute)

	_, ok, err := store.Get(ctx, "s1:k")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNew_FailsWhenUnreachable(t *testing.T) {
	_, mr := newTestClient(t)
	addr := mr.Addr()
	mr.Close()

	_, err := New(context.Background(), ClientConfig{Addr: addr, MaxRetries: -1})
	assert.Error(t, err)
}

func TestKeyPrefixNamespacesEveryKey(t *testing.T) {
	mr := miniredis.RunT(t)
	c, err := New(context.Background(), ClientConfig{Addr: mr.Addr(), KeyPrefix: "webpay:"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	ctx := context.Background()

	_, err = NewSessionStore(c, time.Hour).SetOnce(ctx, "s1:k", []byte("true"))
	require.NoError(t, err)
	unlock, err := NewLockManager(c).Acquire(ctx, "pay:s1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	assert.True(t, mr.Exists("webpay:session:s1:k"))
	assert.True(t, mr.Exists("webpay:lock:pay:s1"))
	assert.False(t, mr.Exists("session:s1:k"))
}
