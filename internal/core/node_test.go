package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKDNodeInner(t *testing.T) {
	n := MakeKDInner(1024, 2, 3.5)

	require.False(t, n.IsLeaf())
	assert.Equal(t, 3, n.Axis(), "axis 2 (Z) carries tag 3")
	assert.Equal(t, int64(1024), n.ChildOffset())
	assert.InDelta(t, 3.5, float64(n.Split()), 1e-6)
}

func TestKDNodeLeaf(t *testing.T) {
	n := MakeKDLeaf(77, 12)

	require.True(t, n.IsLeaf())
	assert.Equal(t, 0, n.Axis())
	assert.Equal(t, int64(77), n.IndexOffset())
	assert.Equal(t, 12, n.Count())
}

func TestKDNodeTagBitsStayFree(t *testing.T) {
	// Child pairs are KDNodeSize-aligned, so the shifted offset never
	// collides with the axis tag.
	for _, off := range []int64{8, 16, 1 << 20, 1 << 30} {
		for axis := 0; axis < 3; axis++ {
			n := MakeKDInner(off, axis, 1)
			assert.Equal(t, axis+1, n.Axis())
			assert.Equal(t, off, n.ChildOffset())
		}
	}
}

func TestKDNodeShiftIndexOffset(t *testing.T) {
	n := MakeKDLeaf(10, 3)
	n.ShiftIndexOffset(90)

	assert.True(t, n.IsLeaf())
	assert.Equal(t, int64(100), n.IndexOffset())
	assert.Equal(t, 3, n.Count())
}

func TestKDNodeRoundTrip(t *testing.T) {
	var buf [KDNodeSize]byte
	nodes := []KDNode{
		MakeKDInner(8, 0, -2.25),
		MakeKDInner(1 << 24, 2, 1e9),
		MakeKDLeaf(0, 0),
		MakeKDLeaf(123456, 42),
	}
	for _, n := range nodes {
		PutKDNode(buf[:], n)
		assert.Equal(t, n, KDNodeFrom(buf[:]))
	}
}

func TestBVHNodeInner(t *testing.T) {
	min := [3]float32{0, 1, 2}
	max := [3]float32{3, 4, 5}
	n := MakeBVHInner(640, 1, min, max)

	require.False(t, n.IsLeaf())
	assert.Equal(t, 1, n.Axis())
	assert.Equal(t, int64(640), n.LeftOffset())
	assert.Equal(t, int64(672), n.RightOffset(), "right child is contiguous")
	assert.Equal(t, min, n.Min)
	assert.Equal(t, max, n.Max)
}

func TestBVHNodeLeaf(t *testing.T) {
	n := MakeBVHLeaf(55, 3, [3]float32{}, [3]float32{1, 1, 1})

	require.True(t, n.IsLeaf())
	assert.Equal(t, 3, n.Count())
	assert.Equal(t, int64(55), n.IndexOffset())
}

func TestEmptyBVHLeaf(t *testing.T) {
	n := EmptyBVHLeaf()
	require.True(t, n.IsLeaf())
	assert.Equal(t, 0, n.Count())
	assert.Equal(t, int64(0), n.IndexOffset())
}

func TestBVHNodeRebase(t *testing.T) {
	t.Run("inner shifts both children", func(t *testing.T) {
		n := MakeBVHInner(BVHNodeSize, 2, [3]float32{}, [3]float32{})
		// Subtree node 1 moves from byte 32 to byte 1024: the
		// pre-shifted delta is (1024-32)>>3.
		delta := NodeWordDelta(1024 - BVHNodeSize)
		n.Rebase(delta, 999)

		assert.Equal(t, 2, n.Axis(), "axis tag survives the shift")
		assert.Equal(t, int64(1024), n.LeftOffset())
		assert.Equal(t, int64(1056), n.RightOffset())
	})

	t.Run("leaf shifts index offset only", func(t *testing.T) {
		n := MakeBVHLeaf(10, 2, [3]float32{}, [3]float32{})
		n.Rebase(12345, 90)

		assert.True(t, n.IsLeaf())
		assert.Equal(t, 2, n.Count())
		assert.Equal(t, int64(100), n.IndexOffset())
	})
}

func TestBVHNodeRoundTrip(t *testing.T) {
	var buf [BVHNodeSize]byte
	nodes := []BVHNode{
		MakeBVHInner(32, 0, [3]float32{-1, -2, -3}, [3]float32{1, 2, 3}),
		MakeBVHLeaf(7, 1, [3]float32{0.5, 0.5, 0.5}, [3]float32{1.5, 1.5, 1.5}),
		EmptyBVHLeaf(),
	}
	for _, n := range nodes {
		PutBVHNode(buf[:], n)
		assert.Equal(t, n, BVHNodeFrom(buf[:]))
	}
}
