package bsptree

// Ray is a query ray with its inverse direction and near/far corner
// selectors precomputed once, so the slab test against a box is six
// multiplies and a handful of compares.
type Ray struct {
	Origin Vector3
	Dir    Vector3
	InvDir Vector3

	// posNeg[2*axis] selects the box corner (0=min, 1=max) the ray
	// enters first on that axis; posNeg[2*axis+1] the corner it
	// leaves through.
	posNeg [6]int
}

// NewRay builds a ray from origin and direction. The direction is
// not normalized here; callers that need unit parametric distances
// pass a unit vector.
func NewRay(origin, dir Vector3) Ray {
	r := Ray{Origin: origin, Dir: dir}
	for a := 0; a < 3; a++ {
		r.InvDir[a] = 1 / dir[a] // +/-Inf on zero components is fine for the slab test
		if dir[a] >= 0 {
			r.posNeg[2*a] = 0
			r.posNeg[2*a+1] = 1
		} else {
			r.posNeg[2*a] = 1
			r.posNeg[2*a+1] = 0
		}
	}
	return r
}

// At returns the point at parametric distance t along the ray.
func (r Ray) At(t float32) Vector3 {
	return r.Origin.Add(r.Dir.Scale(t))
}

// ClipAABB intersects the ray with a box via the slab test and
// returns the parametric interval. ok is false when the ray misses
// the box entirely.
func (r Ray) ClipAABB(b AABB) (tmin, tmax float32, ok bool) {
	tmin = -9999999.0
	tmax = 9999999.0
	corners := [2]Vector3{b.Min, b.Max}

	for a := 0; a < 3; a++ {
		t0 := (corners[r.posNeg[2*a]][a] - r.Origin[a]) * r.InvDir[a]
		t1 := (corners[r.posNeg[2*a+1]][a] - r.Origin[a]) * r.InvDir[a]
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return tmin, tmax, false
		}
	}
	return tmin, tmax, true
}
