package negotiator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/webpay/internal/cache/memory"
	"github.com/alanyoungcy/webpay/internal/domain"
)

func TestProber_CachesPerSession(t *testing.T) {
	ctx := context.Background()
	p := NewProber(memory.NewSessionStore(), "", true, discardLogger())
	req := &probingRequest{fakeRequest: newFakeRequest(nil), canPay: true}

	for i := 0; i < 3; i++ {
		ok, err := p.Probe(ctx, "s1", req)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	assert.Equal(t, 1, req.probeCount())

	_, err := p.Probe(ctx, "s2", req)
	require.NoError(t, err)
	assert.Equal(t, 2, req.probeCount())
}

func TestProber_CachedFalseIsKept(t *testing.T) {
	ctx := context.Background()
	p := NewProber(memory.NewSessionStore(), "", true, discardLogger())
	req := &probingRequest{fakeRequest: newFakeRequest(nil), canPay: false}

	ok, err := p.Probe(ctx, "s", req)
	require.NoError(t, err)
	assert.False(t, ok)

	req.canPay = true
	ok, err = p.Probe(ctx, "s", req)
	require.NoError(t, err)
	assert.False(t, ok, "the first answer holds for the session")
}

func TestProber_UnprobeableHostUsesDefault(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()

	ok, err := NewProber(store, "", false, discardLogger()).Probe(ctx, "s", newFakeRequest(nil))
	require.NoError(t, err)
	assert.False(t, ok)

	raw, found, err := store.Get(ctx, "s:"+DefaultCacheKey)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "false", string(raw))

	ok, err = NewProber(memory.NewSessionStore(), "", true, discardLogger()).Probe(ctx, "s", newFakeRequest(nil))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProber_FailureIsNotCached(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	p := NewProber(store, "", true, discardLogger())
	req := &probingRequest{fakeRequest: newFakeRequest(nil), probeErr: errors.New("boom")}

	_, err := p.Probe(ctx, "s", req)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrCapabilityCheck)

	_, found, err := store.Get(ctx, "s:"+DefaultCacheKey)
	require.NoError(t, err)
	assert.False(t, found)

	req.mu.Lock()
	req.probeErr, req.canPay = nil, true
	req.mu.Unlock()

	ok, err := p.Probe(ctx, "s", req)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 2, req.probeCount())
}

func TestProber_GarbageInCacheIsReprobed(t *testing.T) {
	ctx := context.Background()
	store := memory.NewSessionStore()
	_, err := store.SetOnce(ctx, "s:custom", []byte("maybe"))
	require.NoError(t, err)

	p := NewProber(store, "custom", true, discardLogger())
	req := &probingRequest{fakeRequest: newFakeRequest(nil), canPay: false}

	ok, err := p.Probe(ctx, "s", req)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, req.probeCount())
}
