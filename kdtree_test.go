// Copyright (c) 2025 SciGo BSPTree Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package bsptree

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoTriangleScene is the canonical axis-split fixture: one triangle
// in each half of the box.
func twoTriangleScene() ([]Triangle, AABB) {
	tris := []Triangle{
		{P: [3]Vector3{{0, 0, 0}, {1, 0, 0}, {0, 1, 0}}},
		{P: [3]Vector3{{2, 0, 0}, {3, 0, 0}, {2, 1, 0}}},
	}
	bounds := AABB{Min: Vector3{0, 0, 0}, Max: Vector3{3, 1, 1}}
	return tris, bounds
}

func TestKDTreeTwoTriangleSplit(t *testing.T) {
	tris, bounds := twoTriangleScene()

	tree, err := BuildKDTree(tris, bounds,
		WithSubdivision(SubdivisionSimple),
		WithMaxDepth(4),
		WithMaxListLength(1),
	)
	require.NoError(t, err)
	require.NoError(t, tree.Validate())

	require.Len(t, tree.nodes, 3)

	root := tree.nodes[0]
	require.False(t, root.IsLeaf())
	assert.Equal(t, 1, root.Axis(), "root must split on X")
	assert.InDelta(t, 1.5, float64(root.Split()), 1e-6)

	left := tree.nodes[1]
	right := tree.nodes[2]
	require.True(t, left.IsLeaf())
	require.True(t, right.IsLeaf())

	require.Equal(t, 1, left.Count())
	require.Equal(t, 1, right.Count())
	assert.Equal(t, int32(0), tree.indices[left.IndexOffset()], "left leaf holds triangle A")
	assert.Equal(t, int32(1), tree.indices[right.IndexOffset()], "right leaf holds triangle B")

	info := tree.Info()
	assert.Equal(t, int32(3), info.NumNodes)
	assert.Equal(t, int32(2), info.NumLeafs)
	assert.Equal(t, int32(2), info.SumTris)
}

func TestKDTreeRayHitsNearerTriangle(t *testing.T) {
	tris, bounds := twoTriangleScene()
	tree, err := BuildKDTree(tris, bounds,
		WithSubdivision(SubdivisionSimple),
		WithMaxDepth(4),
		WithMaxListLength(1),
	)
	require.NoError(t, err)

	r := NewRay(Vector3{0.25, 0.25, 1}, Vector3{0, 0, -1})
	hit, ok := tree.Intersect(r)
	require.True(t, ok)

	assert.Equal(t, int32(0), hit.TriIndex)
	assert.InDelta(t, 1.0, float64(hit.T), 1e-5)
	assert.InDelta(t, 0.25, float64(hit.Alpha), 1e-5)
	assert.InDelta(t, 0.25, float64(hit.Beta), 1e-5)
	assert.InDelta(t, 0.0, float64(hit.Point[2]), 1e-5)
}

func TestKDTreeVisibilityOccluded(t *testing.T) {
	// Two parallel triangles covering the unit square at z=0 and z=1.
	tris := []Triangle{
		{P: [3]Vector3{{0, 0, 0}, {2, 0, 0}, {0, 2, 0}}},
		{P: [3]Vector3{{0, 0, 1}, {2, 0, 1}, {0, 2, 1}}},
	}
	bounds := AABB{Min: Vector3{0, 0, -1}, Max: Vector3{2, 2, 2}}

	tree, err := BuildKDTree(tris, bounds, WithMaxListLength(1))
	require.NoError(t, err)

	assert.False(t, tree.IsVisible(Vector3{0.5, 0.5, -1}, Vector3{0.5, 0.5, 2}),
		"segment through both triangles must be occluded")

	assert.True(t, tree.IsVisible(Vector3{1.8, 1.8, 0.25}, Vector3{1.8, 1.8, 0.75}),
		"segment between the planes and outside both triangles must be visible")
}

func TestKDTreeVisibilityNegativeOctant(t *testing.T) {
	// Occluder at z=1 crossed by a segment whose direction has no
	// positive component and a zero X: the target distance must come
	// from the largest-magnitude axis, not the largest signed one.
	tris := []Triangle{
		{P: [3]Vector3{{0, 0, 1}, {2, 0, 1}, {0, 2, 1}}},
	}
	bounds := AABB{Min: Vector3{0, 0, 0}, Max: Vector3{2, 2, 2}}

	tree, err := BuildKDTree(tris, bounds, WithMaxListLength(1))
	require.NoError(t, err)

	assert.False(t, tree.IsVisible(Vector3{0.5, 2, 2}, Vector3{0.5, 0, 0}),
		"segment through the triangle along (0,-1,-1) must be occluded")

	assert.True(t, tree.IsVisible(Vector3{1.8, 2, 2}, Vector3{1.8, 1.5, 1.5}),
		"segment stopping above the occluder must be visible")
}

func TestKDTreeEmptyScene(t *testing.T) {
	bounds := AABB{Min: Vector3{0, 0, 0}, Max: Vector3{1, 1, 1}}
	tree, err := BuildKDTree(nil, bounds, WithMaxDepth(8))
	require.NoError(t, err)
	require.NoError(t, tree.Validate())

	require.Len(t, tree.nodes, 1)
	root := tree.nodes[0]
	require.True(t, root.IsLeaf())
	assert.Equal(t, 0, root.Count())

	r := NewRay(Vector3{0.5, 0.5, -1}, Vector3{0, 0, 1})
	_, ok := tree.Intersect(r)
	assert.False(t, ok, "every ray misses an empty scene")

	assert.True(t, tree.IsVisible(Vector3{0, 0, -1}, Vector3{1, 1, 2}))
}

func TestKDTreeZeroMaxDepth(t *testing.T) {
	tris, bounds := twoTriangleScene()
	tree, err := BuildKDTree(tris, bounds, WithMaxDepth(0))
	require.NoError(t, err)
	require.NoError(t, tree.Validate())

	require.Len(t, tree.nodes, 1)
	assert.Equal(t, 2, tree.nodes[0].Count())

	// Queries still work against the single-leaf root.
	r := NewRay(Vector3{0.25, 0.25, 1}, Vector3{0, 0, -1})
	hit, ok := tree.Intersect(r)
	require.True(t, ok)
	assert.Equal(t, int32(0), hit.TriIndex)
}

func TestKDTreeDegenerateAxisBalanced(t *testing.T) {
	// Scene box has zero extent along Y; the Balanced policy must
	// pick X or Z for every split.
	tris := []Triangle{
		{P: [3]Vector3{{0, 0, 0}, {1, 0, 0}, {0, 0, 1}}},
		{P: [3]Vector3{{2, 0, 0}, {3, 0, 0}, {2, 0, 1}}},
		{P: [3]Vector3{{0.5, 0, 0.2}, {1.5, 0, 0.2}, {0.5, 0, 0.8}}},
	}
	bounds := AABB{Min: Vector3{0, 0, 0}, Max: Vector3{3, 0, 1}}

	tree, err := BuildKDTree(tris, bounds,
		WithSubdivision(SubdivisionBalanced),
		WithMaxDepth(6),
		WithMaxListLength(1),
	)
	require.NoError(t, err)
	require.NoError(t, tree.Validate())

	for i, n := range tree.nodes {
		if !n.IsLeaf() {
			assert.NotEqual(t, 2, n.Axis(), "node %d splits on degenerate Y", i)
		}
	}
}

func TestKDTreeNormalPolicyUnbalancedInput(t *testing.T) {
	// Clustered geometry forces the Normal policy's rebalance
	// attempts; the build must still terminate and cover everything.
	tris := make([]Triangle, 0, 40)
	for i := 0; i < 40; i++ {
		base := Vector3{float32(i) * 0.001, 0, 0}
		tris = append(tris, Triangle{P: [3]Vector3{
			base,
			base.Add(Vector3{0.01, 0, 0}),
			base.Add(Vector3{0, 0.01, 0}),
		}})
	}
	bounds := AABB{Min: Vector3{0, 0, 0}, Max: Vector3{10, 1, 1}}

	tree, err := BuildKDTree(tris, bounds,
		WithSubdivision(SubdivisionNormal),
		WithMaxDepth(20),
		WithMaxListLength(2),
	)
	require.NoError(t, err)
	require.NoError(t, tree.Validate())
}

// randomScene builds deterministic pseudo-random triangles inside the
// [-1,11] box.
func randomScene(rng *rand.Rand, n int) ([]Triangle, AABB) {
	tris := make([]Triangle, n)
	for i := range tris {
		base := Vector3{
			rng.Float32() * 10,
			rng.Float32() * 10,
			rng.Float32() * 10,
		}
		for v := 0; v < 3; v++ {
			tris[i].P[v] = base.Add(Vector3{
				rng.Float32() - 0.5,
				rng.Float32() - 0.5,
				rng.Float32() - 0.5,
			})
		}
	}
	bounds := AABB{Min: Vector3{-1, -1, -1}, Max: Vector3{11, 11, 11}}
	return tris, bounds
}

// bruteForceIntersect is the golden model for property 8: scan every
// triangle and keep the nearest hit.
func bruteForceIntersect(accel []AccelTriangle, r Ray, sign float32) (int32, float32, bool) {
	best := int32(-1)
	tmax := float32(math.MaxFloat32)
	for i := range accel {
		if hitT, _, _, ok := accel[i].Intersect(&r, tmax, sign); ok {
			tmax = hitT
			best = int32(i)
		}
	}
	return best, tmax, best >= 0
}

func TestKDTreeMatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	tris, bounds := randomScene(rng, 300)

	for _, mode := range []Subdivision{SubdivisionSimple, SubdivisionNormal, SubdivisionBalanced} {
		t.Run(mode.String(), func(t *testing.T) {
			tree, err := BuildKDTree(tris, bounds,
				WithSubdivision(mode),
				WithMaxDepth(24),
				WithMaxListLength(4),
			)
			require.NoError(t, err)
			require.NoError(t, tree.Validate())

			rayRng := rand.New(rand.NewSource(7))
			for i := 0; i < 500; i++ {
				origin := Vector3{
					rayRng.Float32()*12 - 1,
					rayRng.Float32()*12 - 1,
					rayRng.Float32()*12 - 1,
				}
				dir := Vector3{
					rayRng.Float32()*2 - 1,
					rayRng.Float32()*2 - 1,
					rayRng.Float32()*2 - 1,
				}.Unit()
				if dir.Length() == 0 {
					continue
				}
				r := NewRay(origin, dir)

				wantIdx, wantT, wantHit := bruteForceIntersect(tree.accel, r, 1)
				hit, gotHit := tree.Intersect(r)

				require.Equal(t, wantHit, gotHit, "ray %d: hit/miss disagrees", i)
				if gotHit {
					assert.InDelta(t, float64(wantT), float64(hit.T), 1e-4, "ray %d", i)
					assert.Equal(t, wantIdx, hit.TriIndex, "ray %d", i)
				}
			}
		})
	}
}

func TestKDTreeStatsAccounting(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	tris, bounds := randomScene(rng, 100)

	tree, err := BuildKDTree(tris, bounds, WithMaxListLength(4))
	require.NoError(t, err)

	info := tree.Info()
	assert.Equal(t, int32(100), info.NumTris)
	assert.Equal(t, info.NumNodes, 2*(info.NumNodes-info.NumLeafs)+1,
		"inner/leaf accounting")
	assert.Equal(t, int32(len(tree.indices)), info.SumTris)
	assert.LessOrEqual(t, info.MaxLeafDepth, info.MaxDepth)
	assert.GreaterOrEqual(t, info.BuildSeconds, float32(0))
}

func TestBuildOptionValidation(t *testing.T) {
	tris, bounds := twoTriangleScene()

	tests := []struct {
		name string
		opt  BuildOption
	}{
		{"negative depth", WithMaxDepth(-1)},
		{"depth beyond stack", WithMaxDepth(MaxTreeDepth + 1)},
		{"zero list length", WithMaxListLength(0)},
		{"ratio out of range", WithEmptySubdivideRatio(1.5)},
		{"nil logger", WithLogger(nil)},
		{"nil clock", WithClock(nil)},
		{"unknown mode", WithSubdivision(Subdivision(99))},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := BuildKDTree(tris, bounds, tt.opt)
			require.Error(t, err)
		})
	}
}
