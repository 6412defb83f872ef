package bsptree

import "math"

// AABB is an axis-aligned bounding box stored as min and max corner
// vectors.
type AABB struct {
	Min Vector3
	Max Vector3
}

// EmptyAABB returns the inverted box that any Extend call shrinks
// onto real geometry.
func EmptyAABB() AABB {
	return AABB{
		Min: Vector3{math.MaxFloat32, math.MaxFloat32, math.MaxFloat32},
		Max: Vector3{-math.MaxFloat32, -math.MaxFloat32, -math.MaxFloat32},
	}
}

// Extend grows the box to include point p.
func (b *AABB) Extend(p Vector3) {
	b.Min = minv(b.Min, p)
	b.Max = maxv(b.Max, p)
}

// ExtendAABB grows the box to include another box.
func (b *AABB) ExtendAABB(o AABB) {
	b.Min = minv(b.Min, o.Min)
	b.Max = maxv(b.Max, o.Max)
}

// Extent returns the per-axis dimensions of the box.
func (b AABB) Extent() Vector3 {
	return b.Max.Sub(b.Min)
}

// LongestAxis returns the axis of greatest extent.
func (b AABB) LongestAxis() int {
	return b.Extent().MaxAxis()
}

// Center returns the centroid of the box.
func (b AABB) Center() Vector3 {
	return b.Min.Add(b.Max).Scale(0.5)
}

// SurfaceArea returns the total surface area of the box.
func (b AABB) SurfaceArea() float32 {
	d := b.Extent()
	return 2 * (d[0]*d[1] + d[1]*d[2] + d[0]*d[2])
}

// Contains reports whether p lies inside or on the box.
func (b AABB) Contains(p Vector3) bool {
	for i := 0; i < 3; i++ {
		if p[i] < b.Min[i] || p[i] > b.Max[i] {
			return false
		}
	}
	return true
}

// Encloses reports whether o lies fully inside b.
func (b AABB) Encloses(o AABB) bool {
	for i := 0; i < 3; i++ {
		if o.Min[i] < b.Min[i] || o.Max[i] > b.Max[i] {
			return false
		}
	}
	return true
}
