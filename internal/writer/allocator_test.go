package writer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocatorPairReservation(t *testing.T) {
	// Node size 8, root in slot 0.
	a := NewAllocator(8, 8)

	first, err := a.AllocatePair()
	require.NoError(t, err)
	assert.Equal(t, uint64(8), first)

	second, err := a.AllocatePair()
	require.NoError(t, err)
	assert.Equal(t, uint64(24), second)

	assert.Equal(t, uint64(40), a.EndOfFile())
	require.NoError(t, a.ValidateNoOverlaps())

	// The low tag bits of every pair address stay free.
	for _, addr := range []uint64{first, second} {
		assert.Zero(t, addr&3)
	}
}

func TestAllocatorRejectsMisalignedSize(t *testing.T) {
	a := NewAllocator(32, 32)

	_, err := a.Allocate(33)
	require.Error(t, err)

	_, err = a.Allocate(0)
	require.Error(t, err)
}

func TestAllocatorBlocksSorted(t *testing.T) {
	a := NewAllocator(8, 8)
	for i := 0; i < 4; i++ {
		_, err := a.AllocatePair()
		require.NoError(t, err)
	}

	blocks := a.Blocks()
	require.Len(t, blocks, 4)
	for i := 1; i < len(blocks); i++ {
		assert.Greater(t, blocks[i].Offset, blocks[i-1].Offset)
	}
	require.NoError(t, a.ValidateNoOverlaps())
}
