package bsptree

import (
	"fmt"
	"log/slog"
	"math"

	"github.com/scigolib/bsptree/internal/core"
)

// BVHTree is a bounding-volume hierarchy over voxel primitives. Each
// node carries its own box; leaves reference a contiguous range of
// the flat voxel-index array. Like the k-d tree it is read-only after
// the build.
type BVHTree struct {
	nodes   []core.BVHNode
	indices []int32
	voxels  []Voxel
	info    core.TreeInfo
	log     *slog.Logger
}

// VoxelHit describes a ray hit on a voxel sample.
type VoxelHit struct {
	T          float32
	VoxelIndex int32
	Material   uint16
	Point      Vector3
	Normal     Vector3
}

// BuildVoxelBVH builds a hierarchy over the voxels' bounding boxes.
// The voxel slice stays externally owned; the tree stores indices.
func BuildVoxelBVH(voxels []Voxel, opts ...BuildOption) (*BVHTree, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	prims := make([]AABB, len(voxels))
	for i := range voxels {
		prims[i] = voxels[i].Bounds()
	}

	nodes, indices, info, err := buildBVH(prims, cfg)
	if err != nil {
		return nil, fmt.Errorf("BVH build failed: %w", err)
	}

	return &BVHTree{
		nodes:   nodes,
		indices: indices,
		voxels:  voxels,
		info:    info,
		log:     cfg.log,
	}, nil
}

// Info returns the tree statistics.
func (t *BVHTree) Info() TreeInfo { return t.info }

// Bounds returns the root box.
func (t *BVHTree) Bounds() AABB {
	if len(t.nodes) == 0 {
		return AABB{}
	}
	return AABB{Min: t.nodes[0].Min, Max: t.nodes[0].Max}
}

// Intersect finds the nearest voxel hit along the ray.
func (t *BVHTree) Intersect(r Ray) (VoxelHit, bool) {
	if len(t.nodes) == 0 {
		return VoxelHit{}, false
	}

	best := VoxelHit{T: float32(math.MaxFloat32)}
	found := false

	var stack [core.MaxTreeDepth]int32
	top := 0
	node := int32(0)

	for {
		n := t.nodes[node]

		tmin, tmax, ok := r.ClipAABB(AABB{Min: n.Min, Max: n.Max})
		if !ok || tmin > best.T || tmax < 0 {
			if top == 0 {
				break
			}
			top--
			node = stack[top]
			continue
		}

		if n.IsLeaf() {
			start := n.IndexOffset()
			for _, vi := range t.indices[start : start+int64(n.Count())] {
				if h, ok := t.intersectVoxel(&r, vi, best.T); ok {
					best = h
					found = true
				}
			}
			if top == 0 {
				break
			}
			top--
			node = stack[top]
			continue
		}

		// Descend the child the ray enters first; defer the other.
		left := int32(n.LeftOffset() / core.BVHNodeSize)
		right := int32(n.RightOffset() / core.BVHNodeSize)
		near, far := left, right
		if r.Dir[n.Axis()] < 0 {
			near, far = right, left
		}
		if top < len(stack) {
			stack[top] = far
			top++
		}
		node = near
	}

	if !found {
		return VoxelHit{}, false
	}
	return best, true
}

// intersectVoxel tests the ray against one voxel: clip against its
// box, then intersect the quantized surface plane inside the clipped
// interval.
func (t *BVHTree) intersectVoxel(r *Ray, voxelIdx int32, tmax float32) (VoxelHit, bool) {
	v := &t.voxels[voxelIdx]

	t0, t1, ok := r.ClipAABB(v.Bounds())
	if !ok {
		return VoxelHit{}, false
	}
	if t0 < selfIntersectEpsilon {
		t0 = selfIntersectEpsilon
	}
	if t1 > tmax {
		t1 = tmax
	}
	if t0 > t1 {
		return VoxelHit{}, false
	}

	n := v.Normal()
	vdot := r.Dir.Dot(n)
	if float32(math.Abs(float64(vdot))) < intersectEpsilon {
		return VoxelHit{}, false
	}

	tHit := (v.PlaneD - r.Origin.Dot(n)) / vdot
	if tHit < t0 || tHit > t1 {
		return VoxelHit{}, false
	}

	return VoxelHit{
		T:          tHit,
		VoxelIndex: voxelIdx,
		Material:   v.Material,
		Point:      r.At(tHit),
		Normal:     n,
	}, true
}

// IsVisible reports whether the segment from origin to target is
// unobstructed by any voxel surface.
func (t *BVHTree) IsVisible(origin, target Vector3) bool {
	if len(t.nodes) == 0 {
		return true
	}

	dir := target.Sub(origin).Unit()
	r := NewRay(origin, dir)
	idx := dir.MaxAbsAxis()
	targetT := (target[idx] - origin[idx]) / dir[idx]

	var stack [core.MaxTreeDepth]int32
	top := 0
	node := int32(0)

	for {
		n := t.nodes[node]

		tmin, tmax, ok := r.ClipAABB(AABB{Min: n.Min, Max: n.Max})
		if !ok || tmin > targetT || tmax < 0 {
			if top == 0 {
				return true
			}
			top--
			node = stack[top]
			continue
		}

		if n.IsLeaf() {
			start := n.IndexOffset()
			for _, vi := range t.indices[start : start+int64(n.Count())] {
				if _, ok := t.intersectVoxel(&r, vi, targetT); ok {
					return false
				}
			}
			if top == 0 {
				return true
			}
			top--
			node = stack[top]
			continue
		}

		left := int32(n.LeftOffset() / core.BVHNodeSize)
		right := int32(n.RightOffset() / core.BVHNodeSize)
		near, far := left, right
		if r.Dir[n.Axis()] < 0 {
			near, far = right, left
		}
		if top < len(stack) {
			stack[top] = far
			top++
		}
		node = near
	}
}
