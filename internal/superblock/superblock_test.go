// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package superblock_test

import (
	"encoding/binary"
	"hash/crc32"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/superblock"
)

func buildRaw(t *testing.T, corruptMagic bool) []byte {
	t.Helper()
	raw := make([]byte, 4096)
	if !corruptMagic {
		copy(raw[0x40:0x48], []byte("_BHRfS_M"))
	} else {
		copy(raw[0x40:0x48], []byte("GARBAGE!"))
	}
	binary.LittleEndian.PutUint32(raw[0x90:0x94], 4096) // sectorsize
	binary.LittleEndian.PutUint32(raw[0x94:0x98], 16384) // nodesize
	calc := crc32.Checksum(raw[0x20:], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(raw[0x0:0x4], calc)
	return raw
}

func TestReadValidatesMagic(t *testing.T) {
	raw := buildRaw(t, true)
	_, err := superblock.Read(raw)
	require.Error(t, err)
	var invalid *superblock.InvalidSuperblockError
	require.ErrorAs(t, err, &invalid)
}

func TestReadAcceptsValidSuperblock(t *testing.T) {
	raw := buildRaw(t, false)
	sb, err := superblock.Read(raw)
	require.NoError(t, err)
	assert.Equal(t, uint32(4096), sb.SectorSize)
	assert.Equal(t, uint32(16384), sb.NodeSize)
}

func TestReadRejectsShortBlock(t *testing.T) {
	_, err := superblock.Read(make([]byte, 10))
	require.Error(t, err)
}

func TestSeedChunkMapEmptyArray(t *testing.T) {
	raw := buildRaw(t, false)
	sb, err := superblock.Read(raw)
	require.NoError(t, err)
	cm, err := sb.SeedChunkMap(0)
	require.NoError(t, err)
	assert.Equal(t, 0, cm.Len())
}

// buildRawWithSysChunkArray lays a valid (key, chunk_item) pair followed by
// a truncated trailing one into the superblock's embedded sys_chunk_array,
// then recomputes the checksum over the whole block.
func buildRawWithSysChunkArray(t *testing.T) []byte {
	t.Helper()
	raw := make([]byte, 4096)
	copy(raw[0x40:0x48], []byte("_BHRfS_M"))
	binary.LittleEndian.PutUint32(raw[0x90:0x94], 4096)  // sectorsize
	binary.LittleEndian.PutUint32(raw[0x94:0x98], 16384) // nodesize

	var pair []byte
	pair = append(pair, make([]byte, 17)...) // Key: (objectid, kind, offset)

	head := make([]byte, 0x30) // ChunkHeader
	binary.LittleEndian.PutUint64(head[0x0:], 0x10000) // Size
	binary.LittleEndian.PutUint16(head[0x2c:], 1)       // NumStripes
	pair = append(pair, head...)

	stripe := make([]byte, 0x20) // ChunkStripe
	binary.LittleEndian.PutUint64(stripe[0x8:], 0x20000) // physical Offset
	pair = append(pair, stripe...)

	truncated := pair[:10] // far short of a full Key, let alone a chunk_item

	const sysChunkArrayOff = 0x32b
	n := copy(raw[sysChunkArrayOff:], pair)
	n += copy(raw[sysChunkArrayOff+n:], truncated)
	binary.LittleEndian.PutUint32(raw[0xa0:0xa4], uint32(n)) // sys_chunk_array_size

	calc := crc32.Checksum(raw[0x20:], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(raw[0x0:0x4], calc)
	return raw
}

func TestParseSysChunkArrayStopsAtTruncatedPair(t *testing.T) {
	raw := buildRawWithSysChunkArray(t)
	sb, err := superblock.Read(raw)
	require.NoError(t, err)

	pairs, err := sb.ParseSysChunkArray()
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, uint16(1), pairs[0].Chunk.Head.NumStripes)
}

func TestSeedChunkMapSeedsFromValidPrefixDespiteTrailingTruncation(t *testing.T) {
	raw := buildRawWithSysChunkArray(t)
	sb, err := superblock.Read(raw)
	require.NoError(t, err)

	cm, err := sb.SeedChunkMap(0)
	require.NoError(t, err)
	assert.Equal(t, 1, cm.Len())
}
