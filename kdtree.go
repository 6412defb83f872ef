package bsptree

import (
	"fmt"
	"log/slog"

	"github.com/scigolib/bsptree/internal/core"
)

// TreeInfo is the statistics block carried by every tree and written
// to every serialized header.
type TreeInfo = core.TreeInfo

// KDTree is an axis-aligned k-d tree over a triangle scene. After a
// build the node and index arrays are invariant, so queries are safe
// to run concurrently; each call owns its traversal stack.
type KDTree struct {
	nodes   []core.KDNode
	indices []int32
	tris    []Triangle
	accel   []AccelTriangle
	bounds  AABB
	info    core.TreeInfo
	log     *slog.Logger
}

// BuildKDTree subdivides the scene bounds over the given triangles.
// The triangle slice stays externally owned and must outlive the
// tree; the tree stores only indices into it.
func BuildKDTree(tris []Triangle, bounds AABB, opts ...BuildOption) (*KDTree, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	nodes, indices, info, err := buildKD(tris, bounds, cfg)
	if err != nil {
		return nil, fmt.Errorf("k-d build failed: %w", err)
	}

	t := &KDTree{
		nodes:   nodes,
		indices: indices,
		tris:    tris,
		bounds:  bounds,
		info:    info,
		log:     cfg.log,
	}
	t.precompute()
	return t, nil
}

// precompute fills the per-triangle intersection records.
func (t *KDTree) precompute() {
	t.accel = make([]AccelTriangle, len(t.tris))
	for i := range t.tris {
		t.accel[i] = NewAccelTriangle(&t.tris[i])
	}
}

// Info returns the tree statistics.
func (t *KDTree) Info() TreeInfo { return t.info }

// Bounds returns the scene box the tree subdivides.
func (t *KDTree) Bounds() AABB { return t.bounds }

// NumTris returns the number of source triangles.
func (t *KDTree) NumTris() int { return int(t.info.NumTris) }

// traversalEntry is one deferred far-child visit.
type traversalEntry struct {
	node       int32
	tmin, tmax float32
}

// Intersect finds the nearest triangle hit along the ray, with back
// faces culled. The traversal clips the ray against the scene box,
// then descends near-to-far with an explicit stack, so the first leaf
// hit inside its interval is the global nearest.
func (t *KDTree) Intersect(r Ray) (Hit, bool) {
	return t.intersectSign(r, 1)
}

// IntersectBothSides finds the nearest hit without face culling.
func (t *KDTree) IntersectBothSides(r Ray) (Hit, bool) {
	return t.intersectSign(r, 0)
}

func (t *KDTree) intersectSign(r Ray, sign float32) (Hit, bool) {
	tmin, tmax, ok := r.ClipAABB(t.bounds)
	if !ok || len(t.nodes) == 0 {
		return Hit{}, false
	}

	var stack [core.MaxTreeDepth]traversalEntry
	top := 0
	node := int32(0)

	for {
		n := t.nodes[node]

		for axis := n.Axis(); axis > 0; axis = n.Axis() {
			a := axis - 1
			split := n.Split()
			dist := (split - r.Origin[a]) * r.InvDir[a]

			childIdx := int32(n.ChildOffset() / core.KDNodeSize)
			var near, far int32
			if split >= r.Origin[a] {
				near, far = childIdx, childIdx+1
			} else {
				near, far = childIdx+1, childIdx
			}

			switch {
			case dist > tmax || dist < 0:
				node = near
			case dist < tmin:
				node = far
			default:
				if top < len(stack) {
					stack[top] = traversalEntry{node: far, tmin: dist, tmax: tmax}
					top++
				}
				node = near
				tmax = dist
			}
			n = t.nodes[node]
		}

		if hit, found := t.intersectLeaf(&r, n, tmax, sign); found {
			return hit, true
		}

		if top == 0 {
			return Hit{}, false
		}
		top--
		node, tmin, tmax = stack[top].node, stack[top].tmin, stack[top].tmax
	}
}

// intersectLeaf scans the leaf's primitive range for the nearest hit
// within (0, tmax].
func (t *KDTree) intersectLeaf(r *Ray, n core.KDNode, tmax, sign float32) (Hit, bool) {
	start := n.IndexOffset()
	count := int64(n.Count())

	found := int32(-1)
	var bestT, bestAlpha, bestBeta float32

	for _, triIdx := range t.indices[start : start+count] {
		at := &t.accel[triIdx]
		hitT, alpha, beta, ok := at.Intersect(r, tmax, sign)
		if !ok {
			continue
		}
		tmax = hitT
		found = triIdx
		bestT, bestAlpha, bestBeta = hitT, alpha, beta
	}

	if found < 0 {
		return Hit{}, false
	}

	tri := &t.tris[found]
	h := Hit{
		T:        bestT,
		Alpha:    bestAlpha,
		Beta:     bestBeta,
		TriIndex: found,
		Material: tri.Material,
		Point:    r.At(bestT),
	}

	// Interpolate vertex attributes from the barycentric weights.
	w0 := 1 - bestAlpha - bestBeta
	h.Normal = tri.N[0].Scale(w0).
		Add(tri.N[1].Scale(bestAlpha)).
		Add(tri.N[2].Scale(bestBeta))
	for i := 0; i < 2; i++ {
		h.UV[i] = tri.UV[0][i]*w0 + tri.UV[1][i]*bestAlpha + tri.UV[2][i]*bestBeta
	}
	return h, true
}

// IsVisible reports whether the straight segment from origin to
// target is unobstructed. Traversal stops at the first hit closer
// than the target.
func (t *KDTree) IsVisible(origin, target Vector3) bool {
	dir := target.Sub(origin).Unit()
	r := NewRay(origin, dir)

	tmin, tmax, ok := r.ClipAABB(t.bounds)
	if !ok || len(t.nodes) == 0 {
		return true
	}

	// Divide by the largest-magnitude component: a signed maximum can
	// land on a zero component for directions in the negative octants
	// and turn targetT into NaN.
	idx := dir.MaxAbsAxis()
	targetT := (target[idx] - origin[idx]) / dir[idx]

	var stack [core.MaxTreeDepth]traversalEntry
	top := 0
	node := int32(0)

	for {
		n := t.nodes[node]

		for axis := n.Axis(); axis > 0; axis = n.Axis() {
			a := axis - 1
			split := n.Split()
			dist := (split - r.Origin[a]) * r.InvDir[a]

			childIdx := int32(n.ChildOffset() / core.KDNodeSize)
			var near, far int32
			if split >= r.Origin[a] {
				near, far = childIdx, childIdx+1
			} else {
				near, far = childIdx+1, childIdx
			}

			switch {
			case dist > tmax || dist < 0:
				node = near
			case dist < tmin:
				node = far
			default:
				if top < len(stack) {
					stack[top] = traversalEntry{node: far, tmin: dist, tmax: tmax}
					top++
				}
				node = near
				tmax = dist
			}
			n = t.nodes[node]
		}

		if t.anyHitBefore(&r, n, targetT) {
			return false
		}

		if top == 0 {
			return true
		}
		top--
		node, tmin, tmax = stack[top].node, stack[top].tmin, stack[top].tmax
	}
}

// anyHitBefore reports whether any primitive in the leaf blocks the
// segment up to targetT. No face culling: an occluder blocks from
// either side.
func (t *KDTree) anyHitBefore(r *Ray, n core.KDNode, targetT float32) bool {
	start := n.IndexOffset()
	count := int64(n.Count())

	for _, triIdx := range t.indices[start : start+count] {
		if _, _, _, ok := t.accel[triIdx].Intersect(r, targetT, 0); ok {
			return true
		}
	}
	return false
}
