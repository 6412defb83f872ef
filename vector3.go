// Package bsptree builds hierarchical space-partitioning structures
// over triangle scenes for high-throughput ray queries: an
// axis-aligned k-d tree with three subdivision policies and a
// bounding-volume hierarchy over voxelized scenes. Both share a
// packed node layout with the split axis tagged into the low bits of
// the child offset, a stack-based front-to-back traversal, and an
// out-of-core serialization to a compact three-file layout.
package bsptree

import "math"

// Vector3 is a 3-component float32 vector, indexed by axis (0=X,
// 1=Y, 2=Z).
type Vector3 [3]float32

// Add returns v + o.
func (v Vector3) Add(o Vector3) Vector3 {
	return Vector3{v[0] + o[0], v[1] + o[1], v[2] + o[2]}
}

// Sub returns v - o.
func (v Vector3) Sub(o Vector3) Vector3 {
	return Vector3{v[0] - o[0], v[1] - o[1], v[2] - o[2]}
}

// Scale returns v scaled by s.
func (v Vector3) Scale(s float32) Vector3 {
	return Vector3{v[0] * s, v[1] * s, v[2] * s}
}

// Dot returns the dot product of v and o.
func (v Vector3) Dot(o Vector3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Cross returns the cross product of v and o.
func (v Vector3) Cross(o Vector3) Vector3 {
	return Vector3{
		v[1]*o[2] - v[2]*o[1],
		v[2]*o[0] - v[0]*o[2],
		v[0]*o[1] - v[1]*o[0],
	}
}

// Length returns the Euclidean length of v.
func (v Vector3) Length() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// Unit returns v normalized to unit length. The zero vector is
// returned unchanged.
func (v Vector3) Unit() Vector3 {
	l := v.Length()
	if l == 0 {
		return v
	}
	return v.Scale(1 / l)
}

// MaxAxis returns the index of the component with the largest value.
// Ties resolve to the lower axis.
func (v Vector3) MaxAxis() int {
	axis := 0
	if v[1] > v[axis] {
		axis = 1
	}
	if v[2] > v[axis] {
		axis = 2
	}
	return axis
}

// MaxAbsAxis returns the index of the component with the largest
// magnitude. For a nonzero vector the component on this axis is
// never zero, so it is safe to divide by.
func (v Vector3) MaxAbsAxis() int {
	axis := 0
	for a := 1; a < 3; a++ {
		if abs32(v[a]) > abs32(v[axis]) {
			axis = a
		}
	}
	return axis
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// minv and maxv are the componentwise min/max helpers used when
// accumulating bounds.
func minv(a, b Vector3) Vector3 {
	for i := 0; i < 3; i++ {
		if b[i] < a[i] {
			a[i] = b[i]
		}
	}
	return a
}

func maxv(a, b Vector3) Vector3 {
	for i := 0; i < 3; i++ {
		if b[i] > a[i] {
			a[i] = b[i]
		}
	}
	return a
}
