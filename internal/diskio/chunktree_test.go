// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfstree"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/diskio"
)

type fakeSource struct {
	nodes map[btrfsvol.LogicalAddr]*btrfstree.Node
}

func (s fakeSource) ReadNode(addr btrfsvol.LogicalAddr) (*btrfstree.Node, error) {
	if n, ok := s.nodes[addr]; ok {
		return n, nil
	}
	return nil, assert.AnError
}

func TestCompleteChunkMapAddsMappingsAndMarksComplete(t *testing.T) {
	chunkRoot := btrfsvol.LogicalAddr(0x1000)
	chunk := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{Size: 0x10000, NumStripes: 1},
		Stripes: []btrfsitem.ChunkStripe{
			{Offset: btrfsvol.PhysicalAddr(0x20000)},
		},
	}
	src := fakeSource{nodes: map[btrfsvol.LogicalAddr]*btrfstree.Node{
		chunkRoot: {
			Head: btrfstree.NodeHeader{Level: 0, NumItems: 1},
			Leaf: []btrfstree.Item{
				{Key: btrfsprim.Key{ObjectID: btrfsprim.ObjIDFirstFree, Kind: btrfsprim.KindChunkItem, Offset: 0x5000}, Body: chunk},
			},
		},
	}}

	chunks := btrfsvol.NewChunkMap(0)
	warnings, err := diskio.CompleteChunkMap(src, chunkRoot, chunks)
	require.NoError(t, err)
	assert.NoError(t, warnings)

	assert.Equal(t, btrfsvol.ChunkMapComplete, chunks.State())
	paddr, ok := chunks.Lookup(btrfsvol.LogicalAddr(0x5000))
	assert.True(t, ok)
	assert.Equal(t, btrfsvol.PhysicalAddr(0x20000), paddr)
}

func TestCompleteChunkMapSkipsNonChunkItems(t *testing.T) {
	chunkRoot := btrfsvol.LogicalAddr(0x2000)
	src := fakeSource{nodes: map[btrfsvol.LogicalAddr]*btrfstree.Node{
		chunkRoot: {
			Head: btrfstree.NodeHeader{Level: 0, NumItems: 1},
			Leaf: []btrfstree.Item{
				{Key: btrfsprim.Key{ObjectID: 1, Kind: btrfsprim.KindInodeItem, Offset: 0}, Body: btrfsitem.Inode{}},
			},
		},
	}}

	chunks := btrfsvol.NewChunkMap(0)
	_, err := diskio.CompleteChunkMap(src, chunkRoot, chunks)
	require.NoError(t, err)
	assert.Equal(t, 0, chunks.Len())
}

func TestCompleteChunkMapRecoversFromUnreadableDescendant(t *testing.T) {
	chunkRoot := btrfsvol.LogicalAddr(0x3000)
	chunk := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{Size: 0x10000, NumStripes: 1},
		Stripes: []btrfsitem.ChunkStripe{
			{Offset: btrfsvol.PhysicalAddr(0x40000)},
		},
	}
	src := fakeSource{nodes: map[btrfsvol.LogicalAddr]*btrfstree.Node{
		chunkRoot: {
			Head: btrfstree.NodeHeader{Level: 1, NumItems: 2},
			Internal: []btrfstree.KeyPointer{
				{Key: btrfsprim.Key{ObjectID: btrfsprim.ObjIDFirstFree, Kind: btrfsprim.KindChunkItem, Offset: 0x5000}, BlockPtr: btrfsvol.LogicalAddr(0x9999)},
				{Key: btrfsprim.Key{ObjectID: btrfsprim.ObjIDFirstFree, Kind: btrfsprim.KindChunkItem, Offset: 0x6000}, BlockPtr: btrfsvol.LogicalAddr(0x4000)},
			},
		},
		btrfsvol.LogicalAddr(0x4000): {
			Head: btrfstree.NodeHeader{Level: 0, NumItems: 1},
			Leaf: []btrfstree.Item{
				{Key: btrfsprim.Key{ObjectID: btrfsprim.ObjIDFirstFree, Kind: btrfsprim.KindChunkItem, Offset: 0x6000}, Body: chunk},
			},
		},
	}}

	chunks := btrfsvol.NewChunkMap(0)
	warnings, err := diskio.CompleteChunkMap(src, chunkRoot, chunks)
	require.NoError(t, err)
	assert.Error(t, warnings)

	assert.Equal(t, btrfsvol.ChunkMapComplete, chunks.State())
	paddr, ok := chunks.Lookup(btrfsvol.LogicalAddr(0x6000))
	assert.True(t, ok)
	assert.Equal(t, btrfsvol.PhysicalAddr(0x40000), paddr)
}
