// Package main provides a command-line utility to inspect serialized
// tree file sets. It prints the header statistics and, on request,
// the tree structure of a k-d tree or a BVH.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/scigolib/bsptree"
)

func main() {
	// Define command-line flags
	dump := flag.Bool("dump", false, "Dump the full tree structure")
	kind := flag.String("kind", "kd", "Tree kind: kd or bvh")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("Usage: dump_bsp [flags] <treefile>")
		fmt.Println("Flags:")
		flag.PrintDefaults()
		return
	}

	name := args[0]
	if !bsptree.IsTreeFile(name) {
		log.Fatalf("%s is not a tree header file", name)
	}

	switch *kind {
	case "kd":
		// Geometry is not needed to print the structure; an empty
		// triangle list suffices for inspection.
		tree, err := bsptree.OpenKDTree(name, nil, bsptree.AABB{})
		if err != nil {
			log.Fatalf("Failed to open tree: %v", err)
		}
		printInfo(tree.Info())
		if *dump {
			if err := tree.DumpStructure(os.Stdout); err != nil {
				log.Fatalf("Failed to dump tree: %v", err)
			}
		}

	case "bvh":
		tree, err := bsptree.OpenBVHTree(name, nil)
		if err != nil {
			log.Fatalf("Failed to open tree: %v", err)
		}
		printInfo(tree.Info())
		b := tree.Bounds()
		fmt.Printf("Bounds:\t\t(%g, %g, %g) - (%g, %g, %g)\n",
			b.Min[0], b.Min[1], b.Min[2], b.Max[0], b.Max[1], b.Max[2])
		if *dump {
			if err := tree.DumpStructure(os.Stdout); err != nil {
				log.Fatalf("Failed to dump tree: %v", err)
			}
		}

	default:
		log.Fatalf("Unknown tree kind %q (want kd or bvh)", *kind)
	}
}

func printInfo(info bsptree.TreeInfo) {
	fmt.Println("-------------------------------------------")
	fmt.Println("Tree Statistics")
	fmt.Println("-------------------------------------------")
	fmt.Printf("Time to build:\t%.3f seconds\n", info.BuildSeconds)
	fmt.Printf("Triangles:\t%d\n", info.NumTris)
	fmt.Printf("Nodes:\t\t%d\n", info.NumNodes)
	fmt.Printf("Leafs:\t\t%d\n", info.NumLeafs)
	fmt.Printf("Max. leaf depth:\t%d (of %d)\n", info.MaxLeafDepth, info.MaxDepth)
	fmt.Printf("Max. tri count/leaf:\t%d\n", info.MaxTrisPerLeaf)
	if info.NumLeafs > 0 {
		fmt.Printf("Avg. leaf depth:\t%.2f\n", float32(info.SumDepth)/float32(info.NumLeafs))
		fmt.Printf("Avg. tris/leaf:\t%.2f\n", float32(info.SumTris)/float32(info.NumLeafs))
		fmt.Printf("Tri refs total:\t%d\n", info.SumTris)
	}
}
