package bsptree

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/scigolib/bsptree/internal/core"
	"github.com/scigolib/bsptree/internal/utils"
)

// Sentinel errors for serialized-tree validation, re-exported from
// the format layer.
var (
	ErrBadMagic           = core.ErrBadMagic
	ErrUnsupportedVersion = core.ErrUnsupportedVersion
	ErrShortRead          = core.ErrShortRead
)

// VoxelTreeName returns the per-voxel subtree archive name,
// <base>_<NNNNN>.ooc with a zero-padded voxel index.
func VoxelTreeName(base string, voxelIndex int32) string {
	return fmt.Sprintf("%s_%05d.ooc", base, voxelIndex)
}

// nodeFileName and idxFileName derive the payload file names of the
// three-file set.
func nodeFileName(name string) string { return name + ".node" }
func idxFileName(name string) string  { return name + ".idx" }

// writeIndices streams the flat index array.
func writeIndices(w *bufio.Writer, indices []int32) error {
	var buf [4]byte
	for _, idx := range indices {
		binary.LittleEndian.PutUint32(buf[:], uint32(idx))
		if _, err := w.Write(buf[:]); err != nil {
			return err
		}
	}
	return nil
}

// readIndices reads exactly count indices.
func readIndices(r io.Reader, count int64) ([]int32, error) {
	raw := make([]byte, 4*count)
	if n, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d index bytes", ErrShortRead, n, len(raw))
	}
	out := make([]int32, count)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return out, nil
}

// Save writes the tree as the three-file set <name>.node, <name>.idx
// and the header file <name>. The header is written last, so an
// interrupted save leaves a file set whose header fails the magic
// check.
func (t *KDTree) Save(name string) error {
	t.log.Info("saving k-d tree", "file", name, "nodes", t.info.NumNodes, "indices", t.info.SumTris)

	nodeF, err := os.Create(nodeFileName(name))
	if err != nil {
		return utils.WrapError("could not open tree node file", err)
	}
	nw := bufio.NewWriter(nodeF)
	var buf [core.KDNodeSize]byte
	for _, n := range t.nodes {
		core.PutKDNode(buf[:], n)
		if _, err := nw.Write(buf[:]); err != nil {
			_ = nodeF.Close()
			return utils.WrapError("node write failed", err)
		}
	}
	if err := nw.Flush(); err != nil {
		_ = nodeF.Close()
		return utils.WrapError("node flush failed", err)
	}
	if err := nodeF.Close(); err != nil {
		return err
	}

	idxF, err := os.Create(idxFileName(name))
	if err != nil {
		return utils.WrapError("could not open tree index file", err)
	}
	iw := bufio.NewWriter(idxF)
	if err := writeIndices(iw, t.indices); err != nil {
		_ = idxF.Close()
		return utils.WrapError("index write failed", err)
	}
	if err := iw.Flush(); err != nil {
		_ = idxF.Close()
		return utils.WrapError("index flush failed", err)
	}
	if err := idxF.Close(); err != nil {
		return err
	}

	headerF, err := os.Create(name)
	if err != nil {
		return utils.WrapError("could not open tree header file", err)
	}
	if err := core.WriteHeader(headerF, &t.info); err != nil {
		_ = headerF.Close()
		return err
	}
	if err := headerF.Close(); err != nil {
		return err
	}

	t.log.Info("k-d tree saved", "file", name)
	return nil
}

// OpenKDTree loads a tree saved by Save. The triangle slice and the
// scene bounds are the caller's: the file set stores only the node
// and index arrays.
func OpenKDTree(name string, tris []Triangle, bounds AABB, opts ...BuildOption) (*KDTree, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	headerF, err := os.Open(name)
	if err != nil {
		return nil, utils.WrapError("could not open tree header file", err)
	}
	info, err := core.ReadHeader(headerF)
	_ = headerF.Close()
	if err != nil {
		return nil, err
	}

	nodes, err := readKDNodes(nodeFileName(name), int64(info.NumNodes))
	if err != nil {
		return nil, err
	}

	idxF, err := os.Open(idxFileName(name))
	if err != nil {
		return nil, utils.WrapError("could not open tree index file", err)
	}
	indices, err := readIndices(bufio.NewReader(idxF), int64(info.SumTris))
	_ = idxF.Close()
	if err != nil {
		return nil, err
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

func readKDNodes(path string, count int64) ([]core.KDNode, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, utils.WrapError("could not open tree node file", err)
	}
	defer func() { _ = f.Close() }()

	raw := make([]byte, count*core.KDNodeSize)
	if n, err := io.ReadFull(f, raw); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d node bytes", ErrShortRead, n, len(raw))
	}
	nodes := make([]core.KDNode, count)
	for i := range nodes {
		nodes[i] = core.KDNodeFrom(raw[i*core.KDNodeSize:])
	}
	return nodes, nil
}

func readBVHNodes(r io.Reader, count int64) ([]core.BVHNode, error) {
	raw := make([]byte, count*core.BVHNodeSize)
	if n, err := io.ReadFull(r, raw); err != nil {
		return nil, fmt.Errorf("%w: got %d of %d node bytes", ErrShortRead, n, len(raw))
	}
	nodes := make([]core.BVHNode, count)
	for i := range nodes {
		nodes[i] = core.BVHNodeFrom(raw[i*core.BVHNodeSize:])
	}
	return nodes, nil
}

// Save writes the BVH as the three-file set, header last.
func (t *BVHTree) Save(name string) error {
	t.log.Info("saving BVH", "file", name, "nodes", t.info.NumNodes, "indices", t.info.SumTris)

	nodeF, err := os.Create(nodeFileName(name))
	if err != nil {
		return utils.WrapError("could not open tree node file", err)
	}
	nw := bufio.NewWriter(nodeF)
	var buf [core.BVHNodeSize]byte
	for _, n := range t.nodes {
		core.PutBVHNode(buf[:], n)
		if _, err := nw.Write(buf[:]); err != nil {
			_ = nodeF.Close()
			return utils.WrapError("node write failed", err)
		}
	}
	if err := nw.Flush(); err != nil {
		_ = nodeF.Close()
		return utils.WrapError("node flush failed", err)
	}
	if err := nodeF.Close(); err != nil {
		return err
	}

	idxF, err := os.Create(idxFileName(name))
	if err != nil {
		return utils.WrapError("could not open tree index file", err)
	}
	iw := bufio.NewWriter(idxF)
	if err := writeIndices(iw, t.indices); err != nil {
		_ = idxF.Close()
		return utils.WrapError("index write failed", err)
	}
	if err := iw.Flush(); err != nil {
		_ = idxF.Close()
		return utils.WrapError("index flush failed", err)
	}
	if err := idxF.Close(); err != nil {
		return err
	}

	headerF, err := os.Create(name)
	if err != nil {
		return utils.WrapError("could not open tree header file", err)
	}
	if err := core.WriteHeader(headerF, &t.info); err != nil {
		_ = headerF.Close()
		return err
	}
	return headerF.Close()
}

// OpenBVHTree loads a BVH saved by Save. The voxel slice is the
// caller's.
func OpenBVHTree(name string, voxels []Voxel, opts ...BuildOption) (*BVHTree, error) {
	cfg, err := applyOptions(opts)
	if err != nil {
		return nil, err
	}

	headerF, err := os.Open(name)
	if err != nil {
		return nil, utils.WrapError("could not open tree header file", err)
	}
	info, err := core.ReadHeader(headerF)
	_ = headerF.Close()
	if err != nil {
		return nil, err
	}

	nodeF, err := os.Open(nodeFileName(name))
	if err != nil {
		return nil, utils.WrapError("could not open tree node file", err)
	}
	nodes, err := readBVHNodes(bufio.NewReader(nodeF), int64(info.NumNodes))
	_ = nodeF.Close()
	if err != nil {
		return nil, err
	}

	idxF, err := os.Open(idxFileName(name))
	if err != nil {
		return nil, utils.WrapError("could not open tree index file", err)
	}
	indices, err := readIndices(bufio.NewReader(idxF), int64(info.SumTris))
	_ = idxF.Close()
	if err != nil {
		return nil, err
	}

	return &BVHTree{
		nodes:   nodes,
		indices: indices,
		voxels:  voxels,
		info:    info,
		log:     cfg.log,
	}, nil
}

// SaveOOC writes the tree as a single self-contained archive: magic,
// version, statistics, node array, index array. This is the format
// of the per-voxel subtree files spliced by SaveVoxelSet.
func (t *BVHTree) SaveOOC(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return utils.WrapError("could not open subtree archive", err)
	}
	w := bufio.NewWriter(f)

	if err := core.WriteHeader(w, &t.info); err != nil {
		_ = f.Close()
		return err
	}
	var buf [core.BVHNodeSize]byte
	for _, n := range t.nodes {
		core.PutBVHNode(buf[:], n)
		if _, err := w.Write(buf[:]); err != nil {
			_ = f.Close()
			return utils.WrapError("node write failed", err)
		}
	}
	if err := writeIndices(w, t.indices); err != nil {
		_ = f.Close()
		return utils.WrapError("index write failed", err)
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return utils.WrapError("archive flush failed", err)
	}
	return f.Close()
}

// loadOOC reads a subtree archive written by SaveOOC.
func loadOOC(path string) (core.TreeInfo, []core.BVHNode, []int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return core.TreeInfo{}, nil, nil, utils.WrapError("could not open subtree archive", err)
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReader(f)
	info, err := core.ReadHeader(r)
	if err != nil {
		return core.TreeInfo{}, nil, nil, err
	}
	nodes, err := readBVHNodes(r, int64(info.NumNodes))
	if err != nil {
		return core.TreeInfo{}, nil, nil, err
	}
	indices, err := readIndices(r, int64(info.SumTris))
	if err != nil {
		return core.TreeInfo{}, nil, nil, err
	}
	return info, nodes, indices, nil
}

// IsTreeFile reports whether the file at path starts with the tree
// magic string. It never returns an error: unreadable means not a
// tree file.
func IsTreeFile(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer func() { _ = f.Close() }()

	var magic [4]byte
	if _, err := io.ReadFull(f, magic[:]); err != nil {
		return false
	}
	return string(magic[:]) == core.FileMagic
}

// errIsRecoverable reports whether a splicing load failure should be
// substituted with an empty leaf instead of aborting the save.
func errIsRecoverable(err error) bool {
	return errors.Is(err, ErrBadMagic) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrShortRead) ||
		errors.Is(err, os.ErrNotExist)
}
