package bsptree

import (
	"fmt"
	"sort"

	"github.com/scigolib/bsptree/internal/core"
	"github.com/scigolib/bsptree/internal/utils"
	"github.com/scigolib/bsptree/internal/writer"
)

// kdBuilder carries the state of one k-d tree build. Nodes stream to
// a temporary file as the recursion reserves and emplaces them; leaf
// index arrays stream to a second file in recursion order. Both are
// slurped into flat arrays at the end and removed.
type kdBuilder struct {
	cfg     buildConfig
	tris    []Triangle
	bounds  AABB
	nodes   *writer.NodeFile
	index   *writer.IndexFile
	scratch *scratchPool
	info    core.TreeInfo

	nodeBuf [core.KDNodeSize]byte
}

// buildKD runs the whole out-of-core build and returns the flat node
// and index arrays.
func buildKD(tris []Triangle, bounds AABB, cfg buildConfig) ([]core.KDNode, []int32, core.TreeInfo, error) {
	start := cfg.now()

	b := &kdBuilder{
		cfg:     cfg,
		tris:    tris,
		bounds:  bounds,
		scratch: newScratchPool(len(tris)),
		info: core.TreeInfo{
			NumTris:             int32(len(tris)),
			NumNodes:            1,
			MaxDepth:            int32(cfg.maxDepth),
			MaxListLength:       int32(cfg.maxListLength),
			EmptySubdivideRatio: cfg.emptySubdivideRatio,
		},
	}
	defer b.scratch.release()

	var err error
	b.nodes, err = writer.NewTempNodeFile("tempnodes-*.tmp", core.KDNodeSize)
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
	for i := range tris {
		rootList = append(rootList, int32(i))
	}
	b.scratch.left[0] = rootList

	if cfg.mode == SubdivisionBalanced {
		boundsPer := make([]AABB, len(tris))
		for i := range tris {
			boundsPer[i] = tris[i].Bounds()
		}
		b.scratch.prepareBounds(boundsPer)
	}

	if len(tris) > 0 && cfg.maxDepth > 0 {
		axis := bounds.Extent().MaxAxis()
		err = b.subdivide(0, rootList, 0, axis, bounds, 0)
	} else {
		// No triangles or no depth allowance: the root is a single
		// leaf holding the whole list.
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

func (b *kdBuilder) slurpNodes() ([]core.KDNode, error) {
	b.cfg.log.Debug("reading in array tree representation",
		"nodes", b.info.NumNodes, "indices", b.info.SumTris)

	raw := make([]byte, int64(b.info.NumNodes)*core.KDNodeSize)
	if _, err := b.nodes.ReadAt(raw, 0); err != nil {
		return nil, utils.WrapError("node file read back failed", err)
	}
	nodes := make([]core.KDNode, b.info.NumNodes)
	for i := range nodes {
		nodes[i] = core.KDNodeFrom(raw[i*core.KDNodeSize:])
	}
	return nodes, nil
}

// writeNode emplaces a node record at its reserved file offset.
func (b *kdBuilder) writeNode(offset int64, n core.KDNode) error {
	core.PutKDNode(b.nodeBuf[:], n)
	_, err := b.nodes.WriteAt(b.nodeBuf[:], offset)
	return err
}

// emitLeaf appends the partition's indices and emplaces a leaf node.
func (b *kdBuilder) emitLeaf(offset int64, list []int32, depth int) error {
	idxOff, err := b.index.Append(list)
	if err != nil {
		return err
	}
	if err := b.writeNode(offset, core.MakeKDLeaf(idxOff, len(list))); err != nil {
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

// partitionVertex splits list at the given plane: a triangle goes
// left when any vertex coordinate on the axis is <= split, right when
// any is >= split. Straddlers land on both sides.
func (b *kdBuilder) partitionVertex(list []int32, axis int, split float32, left, right []int32) ([]int32, []int32) {
	for _, idx := range list {
		tri := &b.tris[idx]
		for k := 0; k < 3; k++ {
			if tri.P[k][axis] <= split {
				left = append(left, idx)
				break
			}
		}
		for k := 0; k < 3; k++ {
			if tri.P[k][axis] >= split {
				right = append(right, idx)
				break
			}
		}
	}
	return left, right
}

// subdivide reserves the child pair, runs the configured split
// policy, emplaces this node, and recurses or emits leaves.
// failCount counts consecutive splits that failed to shrink a branch
// (Normal policy only).
func (b *kdBuilder) subdivide(myOffset int64, list []int32, depth, axis int, box AABB, failCount int) error {
	pairOff, err := b.nodes.ReservePair()
	if err != nil {
		return err
	}
	b.info.NumNodes += 2

	triCount := len(list)
	left, right := b.scratch.childLists(depth)

	var split float32
	switch b.cfg.mode {
	case SubdivisionNormal:
		split, left, right = b.splitNormal(list, axis, box, left, right)
	case SubdivisionBalanced:
		axis, split = b.chooseBalancedSplit(list, axis, box)
		left, right = b.partitionVertex(list, axis, split, left, right)
	default:
		split = (box.Min[axis] + box.Max[axis]) / 2
		left, right = b.partitionVertex(list, axis, split, left, right)
	}
	b.scratch.storeChildLists(depth, left, right)

	if err := b.writeNode(myOffset, core.MakeKDInner(int64(pairOff), axis, split)); err != nil {
		return err
	}
	depth++

	// Child boxes: the Normal policy subdivides at the actual split
	// plane; Simple and Balanced halve the parent extent, matching
	// the midpoint bounds their recursion assumes.
	var bounds [3]float32
	if b.cfg.mode == SubdivisionNormal {
		bounds = [3]float32{box.Min[axis], split, box.Max[axis]}
	} else {
		mid := box.Min[axis] + 0.5*(box.Max[axis]-box.Min[axis])
		bounds = [3]float32{box.Min[axis], mid, box.Max[axis]}
	}

	lists := [2][]int32{left, right}
	for i := 0; i < 2; i++ {
		childOff := int64(pairOff) + int64(i)*core.KDNodeSize
		childList := lists[i]
		newCount := len(childList)

		// Count consecutive splits that did not reduce this branch;
		// too many means degenerate input and we stop refining.
		newFail := 0
		if newCount == triCount {
			newFail = failCount + 1
		}

		progress := len(left)+len(right) < 2*triCount
		if b.cfg.mode == SubdivisionNormal {
			progress = newFail < 3
		}

		if newCount > b.cfg.maxListLength && depth < b.cfg.maxDepth && progress {
			childBox := box
			childBox.Min[axis] = bounds[i]
			childBox.Max[axis] = bounds[i+1]
			if err := b.subdivide(childOff, childList, depth, childBox.Extent().MaxAxis(), childBox, newFail); err != nil {
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

// splitNormal starts at the midpoint and, while the partition leaves
// one side holding nearly everything, shifts the plane halfway toward
// the over-full side, for up to three attempts. The last attempted
// split is emitted even when no attempt balanced the partition.
func (b *kdBuilder) splitNormal(list []int32, axis int, box AABB, left, right []int32) (float32, []int32, []int32) {
	triCount := len(list)
	split := (box.Min[axis] + box.Max[axis]) / 2

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if len(left) > len(right) {
				split = (box.Min[axis] + split) / 2
			} else {
				split = (split + box.Max[axis]) / 2
			}
			left, right = left[:0], right[:0]
		}

		left, right = b.partitionVertex(list, axis, split, left, right)

		if attempt >= 2 || absInt(len(left)-len(right)) < triCount/2 {
			return split, left, right
		}
	}
}

// chooseBalancedSplit scans all three axes starting at the preferred
// one: per axis it sorts the per-triangle interval bounds, places the
// candidate plane in the first separating gap (falling back to the
// midpoint when the intervals never separate), and counts straddling
// triangles. The axis with the fewest straddlers wins; ties resolve
// to the earlier axis in X<Y<Z order. Axes with no extent are
// skipped.
func (b *kdBuilder) chooseBalancedSplit(list []int32, startAxis int, box AABB) (int, float32) {
	triCount := len(list)
	mins := make([]float32, triCount)
	maxs := make([]float32, triCount)

	bestAxis := -1
	bestStraddle := triCount + 1
	var bestSplit float32
	var axisSplit [3]float32
	var axisStraddle [3]int

	axis := startAxis
	for j := 0; j < 3; j++ {
		if box.Max[axis]-box.Min[axis] <= 0 {
			axisStraddle[axis] = triCount + 1 // degenerate axis, never chosen
			axis = (axis + 1) % 3
			continue
		}

		for i, idx := range list {
			mins[i] = b.scratch.minVals[idx][axis]
			maxs[i] = b.scratch.maxVals[idx][axis]
		}
		sort.Slice(mins, func(x, y int) bool { return mins[x] < mins[y] })
		sort.Slice(maxs, func(x, y int) bool { return maxs[x] > maxs[y] })

		// Candidate starts at the midpoint and moves into the first
		// gap where the sorted interval bounds separate.
		axisSplit[axis] = (box.Min[axis] + box.Max[axis]) / 2
		for i := 0; i < triCount; i++ {
			if mins[i] >= maxs[i] {
				if i == 0 {
					axisSplit[axis] = (maxs[i] + mins[i]) / 2
				} else {
					axisSplit[axis] = (max32(maxs[i], mins[i-1]) + min32(mins[i], maxs[i-1])) / 2
				}
				break
			}
		}

		axisStraddle[axis] = 0
		for _, idx := range list {
			if b.scratch.minVals[idx][axis] < axisSplit[axis] && b.scratch.maxVals[idx][axis] > axisSplit[axis] {
				axisStraddle[axis]++
			}
		}
		axis = (axis + 1) % 3
	}

	for a := 0; a < 3; a++ {
		if axisStraddle[a] < bestStraddle {
			bestStraddle = axisStraddle[a]
			bestAxis = a
			bestSplit = axisSplit[a]
		}
	}
	if bestAxis < 0 {
		// Every axis degenerate; fall back to the longest one.
		bestAxis = box.Extent().MaxAxis()
		bestSplit = (box.Min[bestAxis] + box.Max[bestAxis]) / 2
	}
	return bestAxis, bestSplit
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}
