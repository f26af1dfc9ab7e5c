package dma

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoolAcquireFailsBeforeActivate(t *testing.T) {
	a := NewAllocator("test-device")
	defer a.Close()

	p, err := NewPool(a, 64, 2)
	require.NoError(t, err)
	defer p.Close()

	_, err = p.Acquire()
	assert.Error(t, err)
}

func TestPoolAcquireReleaseRoundTrip(t *testing.T) {
	a := NewAllocator("test-device")
	defer a.Close()

	p, err := NewPool(a, 64, 2)
	require.NoError(t, err)
	defer p.Close()
	p.Activate()

	b1, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 64, b1.Len())

	p.Release(b1)
	b2, err := p.Acquire()
	require.NoError(t, err)
	assert.Same(t, b1, b2)
}

func TestPoolExhaustionIsAllocatorExhausted(t *testing.T) {
	a := NewAllocator("test-device")
	defer a.Close()

	p, err := NewPool(a, 64, 1)
	require.NoError(t, err)
	defer p.Close()
	p.Activate()

	_, err = p.Acquire()
	require.NoError(t, err)

	_, err = p.Acquire()
	assert.Error(t, err)
}

func TestPoolDeactivateStopsNewAcquires(t *testing.T) {
	a := NewAllocator("test-device")
	defer a.Close()

	p, err := NewPool(a, 64, 2)
	require.NoError(t, err)
	defer p.Close()
	p.Activate()
	p.Deactivate()

	_, err = p.Acquire()
	assert.Error(t, err)
}

func TestPoolCloseReturnsBlocksToAllocator(t *testing.T) {
	a := NewAllocator("test-device")

	p, err := NewPool(a, 4096, 2)
	require.NoError(t, err)
	p.Activate()
	p.Close()

	assert.Equal(t, 2, a.Len(), "every pool-owned block should land on the allocator free list")
	a.Close()
}
