// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"fmt"

	"github.com/datawire/dlib/derror"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// NodeSource fetches a decoded node block given its logical address. It is
// satisfied by internal/diskio.Device.
type NodeSource interface {
	ReadNode(addr btrfsvol.LogicalAddr) (*Node, error)
}

// defaultMaxDepth bounds how many internal levels the walker will descend
// before giving up on a subtree, guarding against a corrupted image whose
// key-pointers form an unbounded or self-referential chain.
const defaultMaxDepth = 64

// workItem is one entry of the explicit traversal stack — logical address
// plus the depth it was discovered at. An explicit stack plus a visited-set
// and depth cap, instead of recursion, keeps a deeply nested or cyclic
// corrupt tree from blowing the Go call stack.
type workItem struct {
	addr  btrfsvol.LogicalAddr
	depth int

	// expectLevel is the level the parent's position implies this node
	// must have; -1 for the root, whose level is taken on faith.
	expectLevel int
}

// Walker performs a best-effort depth-first traversal of a tree given its
// logical root address. A node whose address cannot be mapped, a corrupt
// header, or a cycle is skipped, never fatal — callers want recovered
// output, not an abort. Skipped subtrees are recorded (see Errors), not
// swallowed silently.
type Walker struct {
	Source NodeSource

	MaxDepth int

	visited map[btrfsvol.LogicalAddr]bool
	errs    []error
}

// NewWalker constructs a Walker reading nodes from source.
func NewWalker(source NodeSource) *Walker {
	return &Walker{
		Source:   source,
		MaxDepth: defaultMaxDepth,
		visited:  make(map[btrfsvol.LogicalAddr]bool),
	}
}

// Errors returns every non-fatal error accumulated across all Walk calls
// made on this Walker so far, folded into one value the way a multi-error
// close path would aggregate several failures.
func (w *Walker) Errors() error {
	if len(w.errs) == 0 {
		return nil
	}
	return derror.MultiError(w.errs)
}

func (w *Walker) recordf(format string, args ...any) {
	w.errs = append(w.errs, fmt.Errorf(format, args...))
}

// Walk visits every leaf item reachable from rootAddr, depth-first, calling
// cb for each. A non-nil error from cb aborts the whole walk (propagated,
// not swallowed — cb errors are the caller's own logic failing, not
// on-disk corruption).
func (w *Walker) Walk(rootAddr btrfsvol.LogicalAddr, cb func(Item) error) error {
	maxDepth := w.MaxDepth
	if maxDepth <= 0 {
		maxDepth = defaultMaxDepth
	}

	stack := []workItem{{addr: rootAddr, depth: 0, expectLevel: -1}}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if w.visited[cur.addr] {
			continue
		}
		w.visited[cur.addr] = true

		if cur.depth > maxDepth {
			w.recordf("btrfstree: depth cap (%d) exceeded at %v, skipping subtree", maxDepth, cur.addr)
			continue
		}

		node, err := w.Source.ReadNode(cur.addr)
		if err != nil {
			w.recordf("btrfstree: skipping unreadable node at %v: %w", cur.addr, err)
			continue
		}

		if cur.expectLevel >= 0 && int(node.Head.Level) != cur.expectLevel {
			w.recordf("btrfstree: node at %v declares level %d but its parent implies %d, skipping subtree",
				cur.addr, node.Head.Level, cur.expectLevel)
			continue
		}

		if node.IsLeaf() {
			for _, item := range node.Leaf {
				if err := cb(item); err != nil {
					return err
				}
			}
			continue
		}

		// Children are pushed in reverse so they pop off the stack
		// in the order their pointer array lists them.
		for i := len(node.Internal) - 1; i >= 0; i-- {
			stack = append(stack, workItem{
				addr:        node.Internal[i].BlockPtr,
				depth:       cur.depth + 1,
				expectLevel: int(node.Head.Level) - 1,
			})
		}
	}
	return nil
}
