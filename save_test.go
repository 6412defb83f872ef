package bsptree

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKDTreeSaveReload(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	tris, bounds := randomScene(rng, 10000)

	tree, err := BuildKDTree(tris, bounds, WithMaxListLength(8), WithMaxDepth(30))
	require.NoError(t, err)

	name := filepath.Join(t.TempDir(), "scene")
	require.NoError(t, tree.Save(name))

	// The three-file set must exist with the expected payload sizes.
	info := tree.Info()
	nodeStat, err := os.Stat(name + ".node")
	require.NoError(t, err)
	assert.Equal(t, int64(info.NumNodes)*8, nodeStat.Size())
	idxStat, err := os.Stat(name + ".idx")
	require.NoError(t, err)
	assert.Equal(t, int64(info.SumTris)*4, idxStat.Size())

	reloaded, err := OpenKDTree(name, tris, bounds)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())

	// Property 6: the round trip is bit-identical.
	assert.Equal(t, tree.nodes, reloaded.nodes)
	assert.Equal(t, tree.indices, reloaded.indices)
	assert.Equal(t, tree.info, reloaded.info)

	// The reloaded tree answers queries identically.
	rayRng := rand.New(rand.NewSource(23))
	for i := 0; i < 1000; i++ {
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
		r := NewRay(origin, dir)

		hitA, okA := tree.Intersect(r)
		hitB, okB := reloaded.Intersect(r)
		require.Equal(t, okA, okB, "ray %d: hit/miss disagrees after reload", i)
		if okA {
			assert.Equal(t, hitA.TriIndex, hitB.TriIndex, "ray %d", i)
			assert.InDelta(t, float64(hitA.T), float64(hitB.T), 1e-5, "ray %d", i)
		}
	}
}

func TestOpenKDTreeRejectsCorruptHeader(t *testing.T) {
	tris, bounds := twoTriangleScene()
	tree, err := BuildKDTree(tris, bounds, WithMaxListLength(1))
	require.NoError(t, err)

	name := filepath.Join(t.TempDir(), "scene")
	require.NoError(t, tree.Save(name))

	t.Run("bad magic", func(t *testing.T) {
		corrupt := filepath.Join(t.TempDir(), "bad")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		data[0] = 'X'
		require.NoError(t, os.WriteFile(corrupt, data, 0o644))
		require.NoError(t, copyFile(name+".node", corrupt+".node"))
		require.NoError(t, copyFile(name+".idx", corrupt+".idx"))

		_, err = OpenKDTree(corrupt, tris, bounds)
		require.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("wrong version", func(t *testing.T) {
		corrupt := filepath.Join(t.TempDir(), "bad")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		data[4] = 99
		require.NoError(t, os.WriteFile(corrupt, data, 0o644))
		require.NoError(t, copyFile(name+".node", corrupt+".node"))
		require.NoError(t, copyFile(name+".idx", corrupt+".idx"))

		_, err = OpenKDTree(corrupt, tris, bounds)
		require.ErrorIs(t, err, ErrUnsupportedVersion)
	})

	t.Run("truncated header", func(t *testing.T) {
		corrupt := filepath.Join(t.TempDir(), "bad")
		data, err := os.ReadFile(name)
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(corrupt, data[:6], 0o644))

		_, err = OpenKDTree(corrupt, tris, bounds)
		require.ErrorIs(t, err, ErrShortRead)
	})

	t.Run("truncated node file", func(t *testing.T) {
		corrupt := filepath.Join(t.TempDir(), "bad")
		require.NoError(t, copyFile(name, corrupt))
		data, err := os.ReadFile(name + ".node")
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(corrupt+".node", data[:len(data)-4], 0o644))
		require.NoError(t, copyFile(name+".idx", corrupt+".idx"))

		_, err = OpenKDTree(corrupt, tris, bounds)
		require.ErrorIs(t, err, ErrShortRead)
	})
}

func TestBVHTreeSaveReload(t *testing.T) {
	voxels := gridVoxels(4)
	tree, err := BuildVoxelBVH(voxels)
	require.NoError(t, err)
	require.NoError(t, tree.Validate())

	name := filepath.Join(t.TempDir(), "bvh")
	require.NoError(t, tree.Save(name))

	reloaded, err := OpenBVHTree(name, voxels)
	require.NoError(t, err)
	require.NoError(t, reloaded.Validate())

	assert.Equal(t, tree.nodes, reloaded.nodes)
	assert.Equal(t, tree.indices, reloaded.indices)
	assert.Equal(t, tree.info, reloaded.info)
}

func TestBVHTreeOOCRoundTrip(t *testing.T) {
	voxels := gridVoxels(3)
	tree, err := BuildVoxelBVH(voxels)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "sub.ooc")
	require.NoError(t, tree.SaveOOC(path))
	assert.True(t, IsTreeFile(path))

	info, nodes, indices, err := loadOOC(path)
	require.NoError(t, err)
	assert.Equal(t, tree.info, info)
	assert.Equal(t, tree.nodes, nodes)
	assert.Equal(t, tree.indices, indices)
}

func TestIsTreeFile(t *testing.T) {
	dir := t.TempDir()

	other := filepath.Join(dir, "other")
	require.NoError(t, os.WriteFile(other, []byte("not a tree"), 0o644))
	assert.False(t, IsTreeFile(other))
	assert.False(t, IsTreeFile(filepath.Join(dir, "missing")))
}

func copyFile(src, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	return os.WriteFile(dst, data, 0o644)
}

// gridVoxels lays out n unit voxels along X, each with a z-facing
// surface plane through its middle.
func gridVoxels(n int) []Voxel {
	voxels := make([]Voxel, n)
	for i := range voxels {
		v := &voxels[i]
		v.Index = int32(i)
		v.Min = Vector3{float32(i), 0, 0}
		v.Max = Vector3{float32(i) + 1, 1, 1}
		v.SetNormal(Vector3{0, 0, 1})
		v.PlaneD = 0.5
		v.Material = uint16(i + 1)
	}
	return voxels
}
