package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStore_WriteOnce(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	_, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	wrote, err := s.SetOnce(ctx, "k", []byte("true"))
	require.NoError(t, err)
	assert.True(t, wrote)

	wrote, err = s.SetOnce(ctx, "k", []byte("false"))
	require.NoError(t, err)
	assert.False(t, wrote)

	v, ok, err := s.Get(ctx, "k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "true", string(v))
}

func TestSessionStore_ReturnsCopies(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()
	in := []byte("true")
	_, _ = s.SetOnce(ctx, "k", in)
	in[0] = 'X'

	v, _, _ := s.Get(ctx, "k")
	v[0] = 'Y'

	again, _, _ := s.Get(ctx, "k")
	assert.Equal(t, "true", string(again))
}

func TestSessionStore_ConcurrentSetOnceHasSingleWinner(t *testing.T) {
	s := NewSessionStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			wrote, err := s.SetOnce(ctx, "k", []byte("v"))
			if err == nil && wrote {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners)
}
