package node

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBumpAllocatorBoundedExhausts(t *testing.T) {
	a := NewBumpAllocator(baseNodeCost * 2)

	_, err := a.New()
	require.NoError(t, err)
	_, err = a.New()
	require.NoError(t, err)

	_, err = a.New()
	require.ErrorIs(t, err, ErrNoMem)
}

func TestBumpAllocatorUnboundedNeverExhausts(t *testing.T) {
	a := NewBumpAllocator(0)

	for i := 0; i < 1000; i++ {
		_, err := a.New()
		require.NoError(t, err)
	}
	require.Equal(t, uint64(1000)*baseNodeCost, a.Used())
}

func TestBumpAllocatorResetReclaimsBoth(t *testing.T) {
	bounded := NewBumpAllocator(baseNodeCost)
	_, err := bounded.New()
	require.NoError(t, err)
	bounded.Reset()
	_, err = bounded.New()
	require.NoError(t, err)

	unbounded := NewBumpAllocator(0)
	_, err = unbounded.New()
	require.NoError(t, err)
	unbounded.Reset()
	require.Zero(t, unbounded.Used())
}

func TestDynamicAllocatorUnboundedNeverExhausts(t *testing.T) {
	a := NewDynamicAllocator(0)
	for i := 0; i < 1000; i++ {
		_, err := a.New()
		require.NoError(t, err)
	}
}
