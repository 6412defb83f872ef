package bsptree

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKDTreeDumpStructure(t *testing.T) {
	tris, bounds := twoTriangleScene()
	tree, err := BuildKDTree(tris, bounds,
		WithSubdivision(SubdivisionSimple),
		WithMaxDepth(4),
		WithMaxListLength(1),
	)
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.DumpStructure(&buf))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "Node X (1.50)", lines[0])
	assert.Equal(t, "|-Leaf 1 Tris", lines[1])
	assert.Equal(t, "|-Leaf 1 Tris", lines[2])
}

func TestBVHTreeDumpStructure(t *testing.T) {
	tree, err := BuildVoxelBVH(gridVoxels(2))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, tree.DumpStructure(&buf))

	out := buf.String()
	assert.Contains(t, out, "Node X Child-Offset 1/2")
	assert.Equal(t, 2, strings.Count(out, "Leaf 1 Tris"))
}

func TestLogStats(t *testing.T) {
	var logBuf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&logBuf, nil))

	tris, bounds := twoTriangleScene()
	tree, err := BuildKDTree(tris, bounds, WithLogger(logger), WithMaxListLength(1))
	require.NoError(t, err)

	tree.LogStats()
	out := logBuf.String()
	assert.Contains(t, out, "statistics")
	assert.Contains(t, out, "nodes=3")
	assert.Contains(t, out, "leafs=2")
}
