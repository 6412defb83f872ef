package bsptree

import (
	"fmt"

	"github.com/scigolib/bsptree/internal/core"
	"github.com/scigolib/bsptree/internal/utils"
	"github.com/scigolib/bsptree/internal/writer"
)

// bvhBuilder carries the state of one BVH build over primitive
// bounds (voxels, or triangle boxes). It shares the k-d builder's
// out-of-core pattern: nodes are emplaced into a temporary file at
// reserved offsets, leaf index arrays stream to a second file, and
// both are slurped into flat arrays at the end.
type bvhBuilder struct {
	cfg     buildConfig
	bounds  []AABB
	nodes   *writer.NodeFile
	index   *writer.IndexFile
	scratch *scratchPool
	info    core.TreeInfo

	nodeBuf [core.BVHNodeSize]byte
}

func buildBVH(prims []AABB, cfg buildConfig) ([]core.BVHNode, []int32, core.TreeInfo, error) {
	start := cfg.now()

	b := &bvhBuilder{
		cfg:     cfg,
		bounds:  prims,
		scratch: newScratchPool(len(prims)),
		info: core.TreeInfo{
			NumTris:             int32(len(prims)),
			NumNodes:            1,
			MaxDepth:            int32(cfg.maxDepth),
			MaxListLength:       int32(cfg.maxListLength),
			EmptySubdivideRatio: cfg.emptySubdivideRatio,
		},
	}
	defer b.scratch.release()

	var err error
	b.nodes, err = writer.NewTempNodeFile("tempnodes-*.tmp", core.BVHNodeSize)
	if err != nil {
		return nil, nil, b.info, err
	}
	defer func() { _ = b.nodes.Discard() }()

	b.index, err = writer.NewTempIndexFile("tempindex-*.tmp")
	if err != nil {
		return nil, nil, b.info, err
	}
	defer func() { _ = b.index.Discard() }()

	rootList := b.scratch.left[0]
	for i := range prims {
		rootList = append(rootList, int32(i))
	}
	b.scratch.left[0] = rootList
	b.scratch.prepareBounds(prims)

	if len(prims) > 1 && cfg.maxDepth > 0 {
		err = b.subdivide(0, rootList, 0)
	} else {
		// Zero or one primitive: the root is a leaf.
		err = b.emitLeaf(0, rootList, 0)
	}
	if err != nil {
		return nil, nil, b.info, err
	}

	nodes, err := b.slurpNodes()
	if err != nil {
		return nil, nil, b.info, err
	}
	indices, err := b.index.Slurp()
	if err != nil {
		return nil, nil, b.info, err
	}
	if int64(len(indices)) != int64(b.info.SumTris) {
		return nil, nil, b.info, fmt.Errorf("index count mismatch: file has %d, stats say %d",
			len(indices), b.info.SumTris)
	}

	b.info.BuildSeconds = float32(cfg.now().Sub(start).Seconds())
	return nodes, indices, b.info, nil
}

func (b *bvhBuilder) slurpNodes() ([]core.BVHNode, error) {
	b.cfg.log.Debug("reading in array tree representation",
		"nodes", b.info.NumNodes, "indices", b.info.SumTris)

	raw := make([]byte, int64(b.info.NumNodes)*core.BVHNodeSize)
	if _, err := b.nodes.ReadAt(raw, 0); err != nil {
		return nil, utils.WrapError("node file read back failed", err)
	}
	nodes := make([]core.BVHNode, b.info.NumNodes)
	for i := range nodes {
		nodes[i] = core.BVHNodeFrom(raw[i*core.BVHNodeSize:])
	}
	return nodes, nil
}

func (b *bvhBuilder) writeNode(offset int64, n core.BVHNode) error {
	core.PutBVHNode(b.nodeBuf[:], n)
	_, err := b.nodes.WriteAt(b.nodeBuf[:], offset)
	return err
}

// listBounds unions the bounds of all primitives in list.
func (b *bvhBuilder) listBounds(list []int32) AABB {
	box := EmptyAABB()
	for _, idx := range list {
		box.ExtendAABB(b.bounds[idx])
	}
	return box
}

func (b *bvhBuilder) emitLeaf(offset int64, list []int32, depth int) error {
	idxOff, err := b.index.Append(list)
	if err != nil {
		return err
	}

	box := AABB{}
	if len(list) > 0 {
		box = b.listBounds(list)
	}
	if err := b.writeNode(offset, core.MakeBVHLeaf(idxOff, len(list), box.Min, box.Max)); err != nil {
		return err
	}

	count := int32(len(list))
	b.info.NumLeafs++
	b.info.SumDepth += int32(depth)
	b.info.SumTris += count
	if int32(depth) > b.info.MaxLeafDepth {
		b.info.MaxLeafDepth = int32(depth)
	}
	if count > b.info.MaxTrisPerLeaf {
		b.info.MaxTrisPerLeaf = count
	}
	return nil
}

// subdivide computes the node box from its primitives, partitions by
// centroid against the box midpoint on the longest axis, and recurses.
// A degenerate partition falls back to a positional half/half split.
func (b *bvhBuilder) subdivide(myOffset int64, list []int32, depth int) error {
	pairOff, err := b.nodes.ReservePair()
	if err != nil {
		return err
	}
	b.info.NumNodes += 2

	box := b.listBounds(list)
	axis := box.LongestAxis()
	pivot := box.Min[axis] + 0.5*(box.Max[axis]-box.Min[axis])

	left, right := b.scratch.childLists(depth)
	for _, idx := range list {
		centroid := 0.5 * (b.scratch.minVals[idx][axis] + b.scratch.maxVals[idx][axis])
		if centroid <= pivot {
			left = append(left, idx)
		} else {
			right = append(right, idx)
		}
	}

	// Subdivision did not work out: just go half/half in input order.
	if len(left) == 0 || len(right) == 0 {
		left, right = left[:0], right[:0]
		mid := len(list) / 2
		left = append(left, list[:mid]...)
		right = append(right, list[mid:]...)
	}
	b.scratch.storeChildLists(depth, left, right)

	if err := b.writeNode(myOffset, core.MakeBVHInner(int64(pairOff), axis, box.Min, box.Max)); err != nil {
		return err
	}
	depth++

	lists := [2][]int32{left, right}
	for i := 0; i < 2; i++ {
		childOff := int64(pairOff) + int64(i)*core.BVHNodeSize
		childList := lists[i]

		if len(childList) > 1 && depth < core.MaxTreeDepth-1 {
			if err := b.subdivide(childOff, childList, depth); err != nil {
				return err
			}
		} else {
			if err := b.emitLeaf(childOff, childList, depth); err != nil {
				return err
			}
		}
	}
	return nil
}
