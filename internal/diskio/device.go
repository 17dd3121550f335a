// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package diskio wraps the image file handle in a single positioned-read
// cursor and caches decoded tree-block nodes.
package diskio

import (
	"fmt"
	"os"

	"git.lukeshu.com/go/typedsync"
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/coldtrace/btrfsimg/internal/btrfstree"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// defaultNodeCacheSize bounds the in-memory decoded-node cache. A handful
// of tree levels' worth of sibling nodes is enough to make a single
// depth-first pass avoid re-reading the same block twice; nothing here
// caches across runs, so this only needs to smooth out the one current walk.
const defaultNodeCacheSize = 4096

// Device is the image file, the chunk map used to locate blocks within it,
// and a bounded decoded-node cache sitting in front of the raw reads. Nodes
// evicted from the cache are Reset and returned to nodePool rather than left
// for the garbage collector, so a deep walk that keeps pushing siblings out
// of the cache reuses their backing allocation instead of paying for a fresh
// one on every ReadNode.
type Device struct {
	file     *os.File
	nodeSize uint32
	chunks   *btrfsvol.ChunkMap
	cache    *lru.Cache[btrfsvol.LogicalAddr, *btrfstree.Node]
	nodePool *typedsync.Pool[*btrfstree.Node]
}

// Open opens path read-only and wires it to chunks for logical-address
// translation. The filesystem's nodesize (from the superblock) is needed up
// front since every node read is a fixed-size read.
func Open(path string, nodeSize uint32, chunks *btrfsvol.ChunkMap) (*Device, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("diskio.Open: %w", err)
	}

	nodePool := &typedsync.Pool[*btrfstree.Node]{
		New: func() *btrfstree.Node { return new(btrfstree.Node) },
	}
	cache, err := lru.NewWithEvict[btrfsvol.LogicalAddr, *btrfstree.Node](defaultNodeCacheSize,
		func(_ btrfsvol.LogicalAddr, node *btrfstree.Node) {
			node.Reset()
			nodePool.Put(node)
		})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("diskio.Open: %w", err)
	}
	return &Device{file: f, nodeSize: nodeSize, chunks: chunks, cache: cache, nodePool: nodePool}, nil
}

// Close releases the underlying file handle.
func (d *Device) Close() error {
	return d.file.Close()
}

// Chunks returns the chunk map this device translates logical addresses
// through, so a caller can reuse it for C7 reads outside of ReadNode.
func (d *Device) Chunks() *btrfsvol.ChunkMap {
	return d.chunks
}

// ReadAt reads len(p) bytes at an absolute physical offset, bypassing the
// chunk map and the node cache — used for raw file-extent reads during
// file reconstruction, whose addresses are already physical.
func (d *Device) ReadAt(p []byte, off btrfsvol.PhysicalAddr) (int, error) {
	return d.file.ReadAt(p, int64(off))
}

// ReadNode satisfies btrfstree.NodeSource: it translates addr through the
// chunk map, reads one nodesize-sized block, decodes it, and caches the
// result. A logical address the chunk map can't resolve is not fatal here
// — the caller (the tree walker) treats the returned error as a reason to
// skip the subtree.
func (d *Device) ReadNode(addr btrfsvol.LogicalAddr) (*btrfstree.Node, error) {
	if node, ok := d.cache.Get(addr); ok {
		return node, nil
	}

	paddr, ok := d.chunks.Lookup(addr)
	if !ok {
		return nil, fmt.Errorf("diskio: logical address %v is not mapped by any known chunk", addr)
	}

	buf := make([]byte, d.nodeSize)
	if _, err := d.ReadAt(buf, paddr); err != nil {
		return nil, fmt.Errorf("diskio: reading node at %v (phys %v): %w", addr, paddr, err)
	}

	node, _ := d.nodePool.Get()
	if err := btrfstree.DecodeNodeInto(node, buf, addr); err != nil {
		node.Reset()
		d.nodePool.Put(node)
		return nil, fmt.Errorf("diskio: decoding node at %v: %w", addr, err)
	}

	d.cache.Add(addr, node)
	return node, nil
}
