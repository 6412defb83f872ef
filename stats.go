package bsptree

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/scigolib/bsptree/internal/core"
)

// logStats emits the statistics banner for a built tree.
func logStats(log *slog.Logger, kind string, info core.TreeInfo, nodeSize int) {
	log.Info(kind+" statistics",
		"buildSeconds", info.BuildSeconds,
		"triangles", info.NumTris,
		"nodes", info.NumNodes,
		"leafs", info.NumLeafs,
		"maxLeafDepth", info.MaxLeafDepth,
		"maxDepth", info.MaxDepth,
		"maxTrisPerLeaf", info.MaxTrisPerLeaf,
	)
	if info.NumLeafs > 0 {
		log.Info(kind+" averages",
			"avgLeafDepth", float32(info.SumDepth)/float32(info.NumLeafs),
			"avgTrisPerLeaf", float32(info.SumTris)/float32(info.NumLeafs),
			"triRefsTotal", info.SumTris,
			"usedKB", (int(info.NumNodes)*nodeSize+int(info.SumTris)*4)/1024,
		)
	}
}

// LogStats writes the tree statistics banner to the tree's logger.
func (t *KDTree) LogStats() {
	logStats(t.log, "k-d tree", t.info, core.KDNodeSize)
}

// LogStats writes the tree statistics banner to the tree's logger.
func (t *BVHTree) LogStats() {
	logStats(t.log, "BVH", t.info, core.BVHNodeSize)
}

// indent builds the "|-" prefixed indentation of the structure dump.
func indent(depth int) string {
	if depth == 0 {
		return ""
	}
	return strings.Repeat("  ", depth-1) + "|-"
}

// kd axis letters, indexed by tag: leaf, X, Y, Z.
const axisLetters = "LXYZ"

// DumpStructure writes an indented textual dump of the tree to w.
func (t *KDTree) DumpStructure(w io.Writer) error {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.dumpNode(w, 0, 0)
}

func (t *KDTree) dumpNode(w io.Writer, node int32, depth int) error {
	n := t.nodes[node]
	if n.IsLeaf() {
		_, err := fmt.Fprintf(w, "%sLeaf %d Tris\n", indent(depth), n.Count())
		return err
	}

	if _, err := fmt.Fprintf(w, "%sNode %c (%.2f)\n", indent(depth), axisLetters[n.Axis()], n.Split()); err != nil {
		return err
	}
	child := int32(n.ChildOffset() / core.KDNodeSize)
	if err := t.dumpNode(w, child, depth+1); err != nil {
		return err
	}
	return t.dumpNode(w, child+1, depth+1)
}

// DumpStructure writes an indented textual dump of the tree to w.
func (t *BVHTree) DumpStructure(w io.Writer) error {
	if len(t.nodes) == 0 {
		return nil
	}
	return t.dumpNode(w, 0, 0)
}

func (t *BVHTree) dumpNode(w io.Writer, node int32, depth int) error {
	n := t.nodes[node]
	if n.IsLeaf() {
		_, err := fmt.Fprintf(w, "%sLeaf %d Tris\n", indent(depth), n.Count())
		return err
	}

	if _, err := fmt.Fprintf(w, "%sNode %c Child-Offset %d/%d\n", indent(depth),
		"XYZ"[n.Axis()], n.LeftOffset()/core.BVHNodeSize, n.RightOffset()/core.BVHNodeSize); err != nil {
		return err
	}
	if err := t.dumpNode(w, int32(n.LeftOffset()/core.BVHNodeSize), depth+1); err != nil {
		return err
	}
	return t.dumpNode(w, int32(n.RightOffset()/core.BVHNodeSize), depth+1)
}
