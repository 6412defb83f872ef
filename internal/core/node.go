// Package core provides the packed on-disk node records shared by the
// k-d tree and BVH builders, together with the header layout used to
// identify serialized trees. It handles the axis-tagged child offsets
// without unsafe pointer arithmetic.
package core

import (
	"encoding/binary"
	"math"
)

// Alignment and size constants for the two node variants.
//
// Child offsets are stored pre-shifted so the two least-significant
// bits of the offset word are always free for the axis tag. The shift
// amount depends on the node variant: 8-byte k-d nodes shift by 1,
// 32-byte BVH nodes shift by 3. Readers must shift back by the same
// amount.
const (
	KDNodeSize  = 8
	BVHNodeSize = 32

	kdOffsetShift  = 1
	bvhOffsetShift = 3

	// MaxTreeDepth bounds both the builder's per-depth scratch ring and
	// the traversal stack.
	MaxTreeDepth = 64
)

// KDNode is the 8-byte packed k-d tree node.
//
// Layout (little-endian):
//
//	Bytes 0-3: Children word
//	  inner: (left-child byte offset >> 1) | axis tag (1=X, 2=Y, 3=Z)
//	  leaf:  primitive index offset << 2 (tag bits = 0)
//	Bytes 4-7: Data word
//	  inner: float32 bits of the split coordinate
//	  leaf:  float32 bits of float32(primitive count)
//
// The two children of an inner node are contiguous: the right child
// sits at left offset + KDNodeSize.
type KDNode struct {
	Children uint32
	Data     uint32
}

// MakeKDInner builds an inner node splitting on axis (0=X, 1=Y, 2=Z)
// at the given coordinate, with both children starting at childOffset
// bytes into the node file.
func MakeKDInner(childOffset int64, axis int, split float32) KDNode {
	return KDNode{
		Children: uint32(childOffset>>kdOffsetShift) | uint32(axis+1),
		Data:     math.Float32bits(split),
	}
}

// MakeKDLeaf builds a leaf covering count primitive indices starting
// at indexOffset entries into the index array. The count is stored as
// float bits, mirroring the split-coordinate slot of inner nodes.
func MakeKDLeaf(indexOffset int64, count int) KDNode {
	return KDNode{
		Children: uint32(indexOffset) << 2,
		Data:     math.Float32bits(float32(count)),
	}
}

// Axis returns the split-axis tag: 0 for a leaf, 1..3 for X/Y/Z.
func (n KDNode) Axis() int { return int(n.Children & 3) }

// IsLeaf reports whether the node is a leaf.
func (n KDNode) IsLeaf() bool { return n.Children&3 == 0 }

// ChildOffset returns the byte offset of the left child in the node
// array. Only valid for inner nodes.
func (n KDNode) ChildOffset() int64 {
	return int64(n.Children&^3) << kdOffsetShift
}

// IndexOffset returns the offset of the leaf's first primitive index
// in the global index array. Only valid for leaves.
func (n KDNode) IndexOffset() int64 { return int64(n.Children >> 2) }

// Split returns the split coordinate of an inner node.
func (n KDNode) Split() float32 { return math.Float32frombits(n.Data) }

// Count returns the primitive count of a leaf.
func (n KDNode) Count() int { return int(math.Float32frombits(n.Data)) }

// ShiftIndexOffset rebases a leaf's index offset, used when splicing
// subtree files into a combined index array.
func (n *KDNode) ShiftIndexOffset(delta int64) {
	n.Children += uint32(delta) << 2
}

// BVHNode is the 32-byte packed BVH node carrying its bounds.
//
// Layout (little-endian):
//
//	Bytes 0-3: Children word
//	  inner: (left-child byte offset >> 3) | axis (0=X, 1=Y, 2=Z)
//	  leaf:  primitive count << 2 | 3
//	Bytes 4-7: Children2 word
//	  inner: right-child byte offset >> 3
//	  leaf:  primitive index offset
//	Bytes 8-19:  Min (3 x float32)
//	Bytes 20-31: Max (3 x float32)
//
// The leaf tag is 3; inner nodes store the raw axis 0..2 (the shifted
// offset keeps the low two bits clear).
type BVHNode struct {
	Children  uint32
	Children2 uint32
	Min       [3]float32
	Max       [3]float32
}

// MakeBVHInner builds an inner node splitting on axis 0..2 whose left
// child starts at childOffset bytes; the right child is contiguous.
func MakeBVHInner(childOffset int64, axis int, min, max [3]float32) BVHNode {
	return BVHNode{
		Children:  uint32(childOffset>>bvhOffsetShift) | uint32(axis),
		Children2: uint32((childOffset + BVHNodeSize) >> bvhOffsetShift),
		Min:       min,
		Max:       max,
	}
}

// MakeBVHLeaf builds a leaf covering count primitive indices starting
// at indexOffset, bounded by the primitives' box.
func MakeBVHLeaf(indexOffset int64, count int, min, max [3]float32) BVHNode {
	return BVHNode{
		Children:  uint32(count)<<2 | 3,
		Children2: uint32(indexOffset),
		Min:       min,
		Max:       max,
	}
}

// EmptyBVHLeaf is the placeholder leaf written when a voxel subtree
// cannot be loaded during splicing.
func EmptyBVHLeaf() BVHNode {
	return BVHNode{Children: 3}
}

// IsLeaf reports whether the node is a leaf (tag 3).
func (n BVHNode) IsLeaf() bool { return n.Children&3 == 3 }

// Axis returns the split axis 0..2 of an inner node.
func (n BVHNode) Axis() int { return int(n.Children & 3) }

// LeftOffset returns the byte offset of the left child.
func (n BVHNode) LeftOffset() int64 {
	return int64(n.Children&^3) << bvhOffsetShift
}

// RightOffset returns the byte offset of the right child.
func (n BVHNode) RightOffset() int64 {
	return int64(n.Children2) << bvhOffsetShift
}

// Count returns the primitive count of a leaf.
func (n BVHNode) Count() int { return int(n.Children >> 2) }

// IndexOffset returns the leaf's offset into the global index array.
func (n BVHNode) IndexOffset() int64 { return int64(n.Children2) }

// Rebase shifts the node's references for splicing: inner child
// offsets move by nodeDelta (a pre-shifted node-word delta), leaf
// index offsets by idxDelta. This is the uniform additive fix-up that
// prefix-order subtree layout makes possible.
func (n *BVHNode) Rebase(nodeDelta, idxDelta int64) {
	if n.IsLeaf() {
		n.Children2 += uint32(idxDelta)
		return
	}
	n.Children += uint32(nodeDelta)
	n.Children2 += uint32(nodeDelta)
}

// NodeWordDelta converts a byte displacement of the node array into
// the pre-shifted delta applied to BVH child words during splicing.
func NodeWordDelta(byteDelta int64) int64 {
	return byteDelta >> bvhOffsetShift
}

// PutKDNode encodes a k-d node into an 8-byte buffer.
func PutKDNode(buf []byte, n KDNode) {
	binary.LittleEndian.PutUint32(buf[0:4], n.Children)
	binary.LittleEndian.PutUint32(buf[4:8], n.Data)
}

// KDNodeFrom decodes a k-d node from an 8-byte buffer.
func KDNodeFrom(buf []byte) KDNode {
	return KDNode{
		Children: binary.LittleEndian.Uint32(buf[0:4]),
		Data:     binary.LittleEndian.Uint32(buf[4:8]),
	}
}

// PutBVHNode encodes a BVH node into a 32-byte buffer.
func PutBVHNode(buf []byte, n BVHNode) {
	binary.LittleEndian.PutUint32(buf[0:4], n.Children)
	binary.LittleEndian.PutUint32(buf[4:8], n.Children2)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[8+4*i:], math.Float32bits(n.Min[i]))
		binary.LittleEndian.PutUint32(buf[20+4*i:], math.Float32bits(n.Max[i]))
	}
}

// BVHNodeFrom decodes a BVH node from a 32-byte buffer.
func BVHNodeFrom(buf []byte) BVHNode {
	n := BVHNode{
		Children:  binary.LittleEndian.Uint32(buf[0:4]),
		Children2: binary.LittleEndian.Uint32(buf[4:8]),
	}
	for i := 0; i < 3; i++ {
		n.Min[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[8+4*i:]))
		n.Max[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[20+4*i:]))
	}
	return n
}
