// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfstree"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// CompleteChunkMap walks the chunk tree rooted at chunkTreeAddr, adding every
// CHUNK_ITEM's mapping to chunks, then marks it Complete. chunks must already
// be Seeded from the superblock's system-chunk array: the chunk tree's own
// nodes are typically only reachable through those seeded mappings, so
// seeding has to happen first and the tree walk layers every remaining
// CHUNK_ITEM mapping on top.
//
// Only a chunk-tree root that cannot be read at all is fatal (err non-nil) —
// the bootstrap invariant that the chunk tree's root is itself covered by
// the system-chunk array is broken and the map can't be trusted at all. Any
// other node the walk recovers from (an unmappable or corrupt descendant) is
// folded into warnings and returned alongside the completed map, the same
// way fsimage.Build folds a subvolume walk's recovered errors into
// FileSystem.Errors instead of aborting: a partially damaged chunk tree
// should still yield whatever mappings it could read.
func CompleteChunkMap(source btrfstree.NodeSource, chunkTreeAddr btrfsvol.LogicalAddr, chunks *btrfsvol.ChunkMap) (warnings error, err error) {
	if _, rootErr := source.ReadNode(chunkTreeAddr); rootErr != nil {
		return nil, fmt.Errorf("diskio: chunk tree root %v is unreadable: %w", chunkTreeAddr, rootErr)
	}

	w := btrfstree.NewWalker(source)
	_ = w.Walk(chunkTreeAddr, func(item btrfstree.Item) error {
		if item.Key.Kind != btrfsprim.KindChunkItem {
			return nil
		}
		chunk, ok := item.Body.(btrfsitem.Chunk)
		if !ok {
			return nil
		}
		if mapping, ok := chunk.Mapping(item.Key); ok {
			chunks.AddMapping(mapping)
		}
		return nil
	})
	chunks.MarkComplete()
	return w.Errors(), nil
}
