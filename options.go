// Copyright (c) 2025 SciGo BSPTree Library Authors. All rights reserved.
// Use of this source code is governed by a BSD-style license that can be found in the LICENSE file.

package bsptree

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/scigolib/bsptree/internal/core"
)

// Subdivision selects the split-plane policy of the k-d builder.
type Subdivision int

const (
	// SubdivisionSimple always splits at the midpoint of the current
	// box along its longest axis.
	SubdivisionSimple Subdivision = iota

	// SubdivisionNormal starts at the midpoint and shifts the plane
	// toward the over-full side for up to three attempts when the
	// partition is badly unbalanced.
	SubdivisionNormal

	// SubdivisionBalanced sorts per-triangle interval bounds to place
	// the plane in a separating gap, then picks the axis with the
	// fewest straddling triangles.
	SubdivisionBalanced
)

// String returns the policy name.
func (s Subdivision) String() string {
	switch s {
	case SubdivisionSimple:
		return "simple"
	case SubdivisionNormal:
		return "normal"
	case SubdivisionBalanced:
		return "balanced"
	default:
		return fmt.Sprintf("subdivision(%d)", int(s))
	}
}

// MaxTreeDepth bounds build recursion and the traversal stack. It is
// the same constant that sizes the builder's per-depth scratch ring.
const MaxTreeDepth = core.MaxTreeDepth

// Build defaults.
const (
	DefaultMaxDepth            = 40
	DefaultMaxListLength       = 7
	DefaultEmptySubdivideRatio = 0.2
)

// BuildOption configures a tree build.
// This follows the Functional Options Pattern.
//
// Example:
//
//	tree, err := bsptree.BuildKDTree(tris, bounds,
//	    bsptree.WithSubdivision(bsptree.SubdivisionBalanced),
//	    bsptree.WithMaxDepth(30),
//	)
type BuildOption func(*buildConfig) error

type buildConfig struct {
	mode                Subdivision
	maxDepth            int
	maxListLength       int
	emptySubdivideRatio float32
	log                 *slog.Logger
	now                 func() time.Time
}

func defaultBuildConfig() buildConfig {
	return buildConfig{
		mode:                SubdivisionSimple,
		maxDepth:            DefaultMaxDepth,
		maxListLength:       DefaultMaxListLength,
		emptySubdivideRatio: DefaultEmptySubdivideRatio,
		log:                 slog.Default(),
		now:                 time.Now,
	}
}

func applyOptions(opts []BuildOption) (buildConfig, error) {
	cfg := defaultBuildConfig()
	for _, opt := range opts {
		if err := opt(&cfg); err != nil {
			return cfg, err
		}
	}
	return cfg, nil
}

// WithSubdivision selects the k-d split policy. BVH builds ignore it.
func WithSubdivision(mode Subdivision) BuildOption {
	return func(c *buildConfig) error {
		if mode < SubdivisionSimple || mode > SubdivisionBalanced {
			return fmt.Errorf("unknown subdivision mode: %d", int(mode))
		}
		c.mode = mode
		return nil
	}
}

// WithMaxDepth caps k-d build recursion. Range: 0..MaxTreeDepth; 0
// makes the root a single leaf. BVH builds use it only for that zero
// check and otherwise recurse until each leaf holds one primitive.
func WithMaxDepth(depth int) BuildOption {
	return func(c *buildConfig) error {
		if depth < 0 || depth > MaxTreeDepth {
			return fmt.Errorf("max depth %d outside 0..%d", depth, MaxTreeDepth)
		}
		c.maxDepth = depth
		return nil
	}
}

// WithMaxListLength sets the k-d leaf target size: recursion stops once
// a partition is no larger than this. BVH builds ignore it.
func WithMaxListLength(n int) BuildOption {
	return func(c *buildConfig) error {
		if n < 1 {
			return fmt.Errorf("max list length must be positive, got %d", n)
		}
		c.maxListLength = n
		return nil
	}
}

// WithEmptySubdivideRatio sets the empty-space split ratio (the
// fraction of the parent extent that is empty on one side). The value
// is recorded in the tree statistics; no subdivision policy reads it,
// so it does not change the built tree.
func WithEmptySubdivideRatio(ratio float32) BuildOption {
	return func(c *buildConfig) error {
		if ratio < 0 || ratio >= 1 {
			return fmt.Errorf("empty subdivide ratio %v outside [0,1)", ratio)
		}
		c.emptySubdivideRatio = ratio
		return nil
	}
}

// WithLogger injects the logger used for build, save and load
// progress. Defaults to slog.Default().
func WithLogger(log *slog.Logger) BuildOption {
	return func(c *buildConfig) error {
		if log == nil {
			return fmt.Errorf("logger must not be nil")
		}
		c.log = log
		return nil
	}
}

// WithClock injects the time source used to measure build duration.
// Defaults to time.Now.
func WithClock(now func() time.Time) BuildOption {
	return func(c *buildConfig) error {
		if now == nil {
			return fmt.Errorf("clock must not be nil")
		}
		c.now = now
		return nil
	}
}
