package pool

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mediabridge/sfu/internal/domain"
	"github.com/mediabridge/sfu/internal/engine/enginetest"
)

func TestNewPool(t *testing.T) {
	t.Run("creates size workers", func(t *testing.T) {
		eng := enginetest.New()
		p, err := New(context.Background(), eng, Options{Size: 4})
		require.NoError(t, err)
		assert.Equal(t, 4, p.Size())
		assert.Equal(t, []int{0, 0, 0, 0}, p.RouterCounts())
	})

	t.Run("rejects non-positive size", func(t *testing.T) {
		eng := enginetest.New()
		_, err := New(context.Background(), eng, Options{Size: 0})
		assert.ErrorIs(t, err, domain.ErrUnavailable)
	})

	t.Run("fails fast on worker creation error", func(t *testing.T) {
		eng := enginetest.New()
		eng.WorkerErr = func(index int) error {
			if index == 2 {
				return errors.New("bind: address already in use")
			}
			return nil
		}
		_, err := New(context.Background(), eng, Options{Size: 4})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "worker 2")
	})
}

func TestAllocate(t *testing.T) {
	eng := enginetest.New()
	p, err := New(context.Background(), eng, Options{Size: 3})
	require.NoError(t, err)

	// Sequential allocations under least-loaded walk the slots round-robin.
	wantIdx := []int{0, 1, 2, 0, 1, 2}
	for i, want := range wantIdx {
		w, idx, err := p.Allocate(LeastLoaded{})
		require.NoError(t, err)
		assert.Equal(t, want, idx, "allocation %d", i)
		assert.Equal(t, domain.WorkerID(fmt.Sprintf("worker-%d", want)), w.ID())
	}
	assert.Equal(t, []int{2, 2, 2}, p.RouterCounts())
}

func TestAllocateSkewedLoad(t *testing.T) {
	eng := enginetest.New()
	p, err := New(context.Background(), eng, Options{Size: 3})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		_, _, err := p.Allocate(LeastLoaded{})
		require.NoError(t, err)
	}
	// Freeing slot 1 makes it the next pick.
	p.Release(1)
	_, idx, err := p.Allocate(LeastLoaded{})
	require.NoError(t, err)
	assert.Equal(t, 1, idx)
}

func TestAllocateConcurrentBalance(t *testing.T) {
	eng := enginetest.New()
	const slots, rounds = 4, 25
	p, err := New(context.Background(), eng, Options{Size: slots})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < slots*rounds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := p.Allocate(LeastLoaded{})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	// Select and increment share a critical section, so the load is exactly
	// even no matter how the goroutines interleaved.
	for i, n := range p.RouterCounts() {
		assert.Equal(t, rounds, n, "slot %d", i)
	}
}

func TestRelease(t *testing.T) {
	eng := enginetest.New()
	p, err := New(context.Background(), eng, Options{Size: 2})
	require.NoError(t, err)

	_, idx, err := p.Allocate(LeastLoaded{})
	require.NoError(t, err)
	p.Release(idx)
	assert.Equal(t, []int{0, 0}, p.RouterCounts())

	// Out-of-range and underflowing releases are ignored.
	p.Release(-1)
	p.Release(99)
	p.Release(0)
	assert.Equal(t, []int{0, 0}, p.RouterCounts())
}

func TestAllocateAfterClose(t *testing.T) {
	eng := enginetest.New()
	p, err := New(context.Background(), eng, Options{Size: 2})
	require.NoError(t, err)
	p.Close()
	_, _, err = p.Allocate(LeastLoaded{})
	assert.ErrorIs(t, err, domain.ErrUnavailable)
}
