package bsptree

import (
	"bufio"
	"errors"
	"os"

	"github.com/scigolib/bsptree/internal/core"
	"github.com/scigolib/bsptree/internal/utils"
)

// ErrLeafOverflow is logged (not returned) when a top-level leaf
// references more than one voxel during splicing; the first voxel is
// kept.
var ErrLeafOverflow = errors.New("more than one voxel in a top-level leaf")

// voxelSplicer carries the state of one SaveVoxelSet run: the output
// node and index files, the running cursors the subtree fix-ups are
// computed from, and the aggregated statistics.
type voxelSplicer struct {
	tree *BVHTree
	base string

	nodeF *os.File
	idxW  *bufio.Writer

	nodeCursor int64 // next free byte in the node file
	idxCursor  int64 // next free entry in the index array
	info       core.TreeInfo
}

// SaveVoxelSet writes the combined scene file set for a voxel BVH
// whose leaves each reference one voxel. For every referenced voxel
// the per-voxel subtree archive <name>_<NNNNN>.ooc is loaded, its
// offsets rewritten, its root swapped into the top-level leaf slot
// and its remaining nodes appended, producing a single
// self-contained tree.
//
// Subtree archives that are missing, truncated, or carry a wrong
// magic or version are replaced by an empty leaf with a warning; the
// save continues. The header file is written last.
func (t *BVHTree) SaveVoxelSet(name string) error {
	t.log.Info("saving voxel BVH scene", "file", name, "voxels", len(t.voxels))

	if len(t.nodes) == 0 {
		return errors.New("cannot splice an empty tree")
	}

	nodeF, err := os.Create(nodeFileName(name))
	if err != nil {
		return utils.WrapError("could not open tree node file", err)
	}
	idxF, err := os.Create(idxFileName(name))
	if err != nil {
		_ = nodeF.Close()
		return utils.WrapError("could not open tree index file", err)
	}

	s := &voxelSplicer{
		tree:  t,
		base:  name,
		nodeF: nodeF,
		idxW:  bufio.NewWriter(idxF),

		// Appended subtree nodes start after the top-level block.
		nodeCursor: int64(t.info.NumNodes) * core.BVHNodeSize,
		info:       t.info,
	}

	// The top-level leaves are replaced by subtree roots, so reset
	// the counters that splicing re-accumulates. The final max leaf
	// depth is the voxel trees' max depth below the top-level one.
	maxDepthTop := s.info.MaxLeafDepth
	s.info.NumNodes -= s.info.NumLeafs
	s.info.NumTris = 0
	s.info.SumTris = 0
	s.info.NumLeafs = 0
	s.info.MaxTrisPerLeaf = 0
	s.info.MaxListLength = 0
	s.info.MaxLeafDepth = 0
	s.info.BuildSeconds = 0

	err = s.saveNode(0, t.nodes[0])

	if flushErr := s.idxW.Flush(); err == nil {
		err = flushErr
	}
	if closeErr := idxF.Close(); err == nil {
		err = closeErr
	}
	if closeErr := nodeF.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}

	s.info.MaxLeafDepth += maxDepthTop

	headerF, err := os.Create(name)
	if err != nil {
		return utils.WrapError("could not open tree header file", err)
	}
	if err := core.WriteHeader(headerF, &s.info); err != nil {
		_ = headerF.Close()
		return err
	}
	if err := headerF.Close(); err != nil {
		return err
	}

	t.log.Info("voxel BVH scene saved", "file", name,
		"nodes", s.info.NumNodes, "indices", s.info.SumTris)
	return nil
}

// saveNode walks the in-memory top-level tree pre-order, writing
// inner nodes verbatim at their pre-assigned offsets and swapping
// subtree roots into the leaf slots.
func (s *voxelSplicer) saveNode(myOffset int64, n core.BVHNode) error {
	if !n.IsLeaf() {
		if err := s.writeNodeAt(myOffset, n); err != nil {
			return err
		}
		left := n.LeftOffset()
		if err := s.saveNode(left, s.tree.nodes[left/core.BVHNodeSize]); err != nil {
			return err
		}
		right := n.RightOffset()
		return s.saveNode(right, s.tree.nodes[right/core.BVHNodeSize])
	}

	count := n.Count()
	if count > 1 {
		s.tree.log.Error("leaf overflow during splicing, keeping first voxel",
			"error", ErrLeafOverflow, "count", count)
	}
	if count == 0 {
		return s.writeEmptyLeaf(myOffset)
	}

	voxelIdx := s.tree.indices[n.IndexOffset()]
	voxel := &s.tree.voxels[voxelIdx]
	path := VoxelTreeName(s.base, voxel.Index)

	root, err := s.spliceSubtree(path)
	if err != nil {
		if !errIsRecoverable(err) {
			return err
		}
		s.tree.log.Warn("could not include voxel subtree, substituting empty leaf",
			"file", path, "error", err)
		return s.writeEmptyLeaf(myOffset)
	}

	return s.writeNodeAt(myOffset, root)
}

// spliceSubtree loads one per-voxel archive, rewrites its offsets
// against the current cursors, appends its non-root nodes and its
// indices, and returns the rebased root for the top-level leaf slot.
//
// The rewrite relies on the subtree being in prefix order with its
// root at offset 0: every child offset moves by the same delta, and
// the root replaces the placeholder leaf instead of being appended.
func (s *voxelSplicer) spliceSubtree(path string) (core.BVHNode, error) {
	subInfo, subNodes, subIndices, err := loadOOC(path)
	if err != nil {
		return core.BVHNode{}, err
	}
	if len(subNodes) == 0 {
		return core.BVHNode{}, ErrShortRead
	}

	s.tree.log.Debug("including voxel subtree", "file", path,
		"nodes", subInfo.NumNodes, "indices", subInfo.SumTris)

	nodeDelta := core.NodeWordDelta(s.nodeCursor - core.BVHNodeSize)
	for i := range subNodes {
		subNodes[i].Rebase(nodeDelta, s.idxCursor)
	}

	// Append everything but the root, which takes over the
	// placeholder leaf's slot in the top-level block.
	buf := make([]byte, (len(subNodes)-1)*core.BVHNodeSize)
	for i, n := range subNodes[1:] {
		core.PutBVHNode(buf[i*core.BVHNodeSize:], n)
	}
	if len(buf) > 0 {
		if _, err := s.nodeF.WriteAt(buf, s.nodeCursor); err != nil {
			return core.BVHNode{}, utils.WrapError("subtree node write failed", err)
		}
	}
	if err := writeIndices(s.idxW, subIndices); err != nil {
		return core.BVHNode{}, utils.WrapError("subtree index write failed", err)
	}

	s.idxCursor += int64(subInfo.SumTris)
	s.nodeCursor += int64(subInfo.NumNodes-1) * core.BVHNodeSize

	s.info.NumNodes += subInfo.NumNodes
	s.info.NumTris += subInfo.NumTris
	s.info.SumTris += subInfo.SumTris
	s.info.NumLeafs += subInfo.NumLeafs
	s.info.SumDepth += subInfo.SumDepth
	s.info.BuildSeconds += subInfo.BuildSeconds
	if subInfo.MaxLeafDepth > s.info.MaxLeafDepth {
		s.info.MaxLeafDepth = subInfo.MaxLeafDepth
	}
	if subInfo.MaxListLength > s.info.MaxListLength {
		s.info.MaxListLength = subInfo.MaxListLength
	}
	if subInfo.MaxTrisPerLeaf > s.info.MaxTrisPerLeaf {
		s.info.MaxTrisPerLeaf = subInfo.MaxTrisPerLeaf
	}

	return subNodes[0], nil
}

func (s *voxelSplicer) writeEmptyLeaf(myOffset int64) error {
	s.info.NumNodes++
	s.info.NumLeafs++
	return s.writeNodeAt(myOffset, core.EmptyBVHLeaf())
}

func (s *voxelSplicer) writeNodeAt(offset int64, n core.BVHNode) error {
	var buf [core.BVHNodeSize]byte
	core.PutBVHNode(buf[:], n)
	if _, err := s.nodeF.WriteAt(buf[:], offset); err != nil {
		return utils.WrapError("node write failed", err)
	}
	return nil
}

// OpenVoxelSet loads a spliced scene file set back as a single BVH.
func OpenVoxelSet(name string, voxels []Voxel, opts ...BuildOption) (*BVHTree, error) {
	return OpenBVHTree(name, voxels, opts...)
}
