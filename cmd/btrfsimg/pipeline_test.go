// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfstree"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/fsimage"
	"github.com/coldtrace/btrfsimg/internal/linuxmode"
)

const (
	imgNodeSize = 4096

	// One SYSTEM chunk maps logical [0x100000, 0x110000) to physical
	// 0x20000; the chunk tree, root tree, and fs tree all live inside it.
	chunkLogical  = btrfsvol.LogicalAddr(0x100000)
	chunkPhysical = btrfsvol.PhysicalAddr(0x20000)
	chunkLength   = btrfsvol.AddrDelta(0x10000)

	chunkTreeAddr = chunkLogical
	rootTreeAddr  = chunkLogical + 0x1000
	fsTreeAddr    = chunkLogical + 0x2000
)

type rawItem struct {
	key     btrfsprim.Key
	payload []byte
}

func marshalLeaf(t *testing.T, addr btrfsvol.LogicalAddr, items []rawItem) []byte {
	t.Helper()

	head := btrfstree.NodeHeader{
		Addr:     addr,
		NumItems: uint32(len(items)),
		Level:    0,
	}
	headBytes, err := binstruct.Marshal(head)
	require.NoError(t, err)

	raw := make([]byte, imgNodeSize)
	copy(raw, headBytes)

	descOff := len(headBytes)
	payloadEnd := imgNodeSize - len(headBytes)
	for _, item := range items {
		payloadEnd -= len(item.payload)
		copy(raw[len(headBytes)+payloadEnd:], item.payload)

		keyBytes, err := binstruct.Marshal(item.key)
		require.NoError(t, err)
		copy(raw[descOff:], keyBytes)
		binary.LittleEndian.PutUint32(raw[descOff+17:], uint32(payloadEnd))
		binary.LittleEndian.PutUint32(raw[descOff+21:], uint32(len(item.payload)))
		descOff += 25
	}
	return raw
}

// writeSyntheticImage lays out a minimal single-device bare filesystem: a
// superblock whose system-chunk array covers all three trees, a one-item
// chunk tree, a root tree naming the default fs tree, and an fs tree
// holding just the root directory's inode.
func writeSyntheticImage(t *testing.T) string {
	t.Helper()

	sysChunk := btrfsitem.Chunk{
		Head: btrfsitem.ChunkHeader{
			Size:       chunkLength,
			Owner:      btrfsprim.ObjIDChunkTree,
			NumStripes: 1,
		},
		Stripes: []btrfsitem.ChunkStripe{{DeviceID: 1, Offset: chunkPhysical}},
	}
	chunkKey := btrfsprim.Key{
		ObjectID: btrfsprim.ObjIDFirstFree,
		Kind:     btrfsprim.KindChunkItem,
		Offset:   uint64(chunkLogical),
	}

	// Superblock.
	sb := make([]byte, 4096)
	copy(sb[0x40:0x48], "_BHRfS_M")
	binary.LittleEndian.PutUint64(sb[0x50:], uint64(rootTreeAddr))
	binary.LittleEndian.PutUint64(sb[0x58:], uint64(chunkTreeAddr))
	binary.LittleEndian.PutUint32(sb[0x90:], 4096)        // sectorsize
	binary.LittleEndian.PutUint32(sb[0x94:], imgNodeSize) // nodesize

	keyBytes, err := binstruct.Marshal(chunkKey)
	require.NoError(t, err)
	chunkBytes, err := binstruct.Marshal(sysChunk)
	require.NoError(t, err)
	n := copy(sb[0x32b:], keyBytes)
	n += copy(sb[0x32b+n:], chunkBytes)
	binary.LittleEndian.PutUint32(sb[0xa0:], uint32(n)) // sys_chunk_array_size

	calc := crc32.Checksum(sb[0x20:], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(sb[0x0:], calc)

	// Chunk tree: the same mapping again, so completion is a no-op
	// beyond confirming the walk.
	chunkLeaf := marshalLeaf(t, chunkTreeAddr, []rawItem{
		{key: chunkKey, payload: chunkBytes},
	})

	// Root tree: one ROOT_ITEM naming the default fs tree.
	fsRoot := btrfsitem.Root{ByteNr: fsTreeAddr, RootDirID: btrfsprim.ObjIDFirstFree}
	fsRootBytes, err := binstruct.Marshal(fsRoot)
	require.NoError(t, err)
	rootLeaf := marshalLeaf(t, rootTreeAddr, []rawItem{
		{
			key:     btrfsprim.Key{ObjectID: btrfsprim.ObjIDFSTree, Kind: btrfsprim.KindRootItem},
			payload: fsRootBytes,
		},
	})

	// FS tree: just the root directory's inode (objectid 256).
	rootInode := btrfsitem.Inode{
		NLink: 1,
		Mode:  linuxmode.ModeFmtDir | 0o755,
	}
	rootInodeBytes, err := binstruct.Marshal(rootInode)
	require.NoError(t, err)
	fsLeaf := marshalLeaf(t, fsTreeAddr, []rawItem{
		{
			key:     btrfsprim.Key{ObjectID: btrfsprim.ObjIDFirstFree, Kind: btrfsprim.KindInodeItem},
			payload: rootInodeBytes,
		},
	})

	path := filepath.Join(t.TempDir(), "image")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(int64(chunkPhysical)+int64(chunkLength)))
	_, err = f.WriteAt(sb, 0x10000)
	require.NoError(t, err)
	_, err = f.WriteAt(chunkLeaf, int64(chunkPhysical))
	require.NoError(t, err)
	_, err = f.WriteAt(rootLeaf, int64(chunkPhysical)+0x1000)
	require.NoError(t, err)
	_, err = f.WriteAt(fsLeaf, int64(chunkPhysical)+0x2000)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return path
}

func TestOpenImageEmptyRootDirectory(t *testing.T) {
	path := writeSyntheticImage(t)

	img, err := openImage(path, 0)
	require.NoError(t, err)
	defer img.Close()

	assert.Equal(t, btrfsvol.ChunkMapComplete, img.dev.Chunks().State())

	entries := img.fs.BuildEntries(img.dev.Chunks(), int64(img.sb.SectorSize))
	require.Len(t, entries, 1)
	assert.Equal(t, "/", entries[0].Path)
	assert.Equal(t, "directory", entries[0].Type)
	assert.Equal(t, btrfsprim.ObjID(256), entries[0].Inode.InodeID())
	assert.Equal(t, btrfsprim.ObjIDFSTree, entries[0].SubvolumeID)
	assert.Equal(t, "drwxr-xr-x", entries[0].ModeStr)
}

func TestOpenImageDeterministicAcrossRuns(t *testing.T) {
	path := writeSyntheticImage(t)

	listing := func() []fsimage.FileEntry {
		img, err := openImage(path, 0)
		require.NoError(t, err)
		defer img.Close()
		return img.fs.BuildEntries(img.dev.Chunks(), int64(img.sb.SectorSize))
	}

	assert.Equal(t, listing(), listing())
}

func TestOpenImageMissingFile(t *testing.T) {
	_, err := openImage(filepath.Join(t.TempDir(), "nope"), 0)
	require.Error(t, err)
}

func TestOpenImageInvalidSuperblock(t *testing.T) {
	path := filepath.Join(t.TempDir(), "image")
	require.NoError(t, os.WriteFile(path, make([]byte, 0x11000), 0o644))

	_, err := openImage(path, 0)
	require.Error(t, err)
}
