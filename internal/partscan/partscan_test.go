// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package partscan_test

import (
	"encoding/binary"
	"hash/crc32"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/partscan"
	"github.com/coldtrace/btrfsimg/internal/superblock"
)

func writeSuperblockAt(t *testing.T, f *os.File, offset int64, label string) {
	t.Helper()
	raw := make([]byte, 4096)
	copy(raw[0x40:0x48], []byte("_BHRfS_M"))
	copy(raw[0x12b:], label)
	calc := crc32.Checksum(raw[0x20:], crc32.MakeTable(crc32.Castagnoli))
	binary.LittleEndian.PutUint32(raw[0x0:0x4], calc)
	_, err := f.WriteAt(raw, offset+superblock.PrimaryOffset)
	require.NoError(t, err)
}

func TestDetectBareFilesystemFallback(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	f, err := os.Create(path)
	require.NoError(t, err)

	require.NoError(t, f.Truncate(superblock.PrimaryOffset+4096))
	writeSuperblockAt(t, f, 0, "bare-fs")
	require.NoError(t, f.Close())

	parts, err := partscan.Detect(path)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, partscan.SchemeBare, parts[0].Scheme)
	assert.Equal(t, "bare-fs", parts[0].Label)
}

func TestDetectMBRPartition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	f, err := os.Create(path)
	require.NoError(t, err)

	const partOffsetSectors = 2048
	partOffset := int64(partOffsetSectors) * 512

	require.NoError(t, f.Truncate(partOffset + superblock.PrimaryOffset + 4096))

	mbr := make([]byte, 512)
	mbr[0x1FE] = 0x55
	mbr[0x1FF] = 0xAA
	entryOff := 0x1BE
	mbr[entryOff+0x04] = 0x83 // Linux partition type
	binary.LittleEndian.PutUint32(mbr[entryOff+0x08:], partOffsetSectors)
	binary.LittleEndian.PutUint32(mbr[entryOff+0x0C:], 4096)
	_, err = f.WriteAt(mbr, 0)
	require.NoError(t, err)

	writeSuperblockAt(t, f, partOffset, "root-fs")
	require.NoError(t, f.Close())

	parts, err := partscan.Detect(path)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, partscan.SchemeMBR, parts[0].Scheme)
	assert.Equal(t, partOffset, parts[0].Offset)
	assert.Equal(t, "root-fs", parts[0].Label)
}

func TestDetectGPTPartition(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	f, err := os.Create(path)
	require.NoError(t, err)

	const fsStartLBA = 4096
	partOffset := int64(fsStartLBA) * 512

	require.NoError(t, f.Truncate(partOffset+superblock.PrimaryOffset+4096))

	// GPT header at LBA 1: entry array of two 128-byte entries at LBA 2.
	header := make([]byte, 512)
	copy(header[0:8], "EFI PART")
	binary.LittleEndian.PutUint64(header[0x48:], 2)   // entry_lba
	binary.LittleEndian.PutUint32(header[0x50:], 2)   // num_entries
	binary.LittleEndian.PutUint32(header[0x54:], 128) // entry_size
	_, err = f.WriteAt(header, 512)
	require.NoError(t, err)

	// Entry 1 is all zeros (unused, skipped). Entry 2 is the filesystem.
	entry := make([]byte, 128)
	entry[0] = 0xAF // nonzero type GUID
	binary.LittleEndian.PutUint64(entry[0x20:], fsStartLBA)     // start_lba
	binary.LittleEndian.PutUint64(entry[0x28:], fsStartLBA+511) // end_lba
	name := "data"
	for i, r := range name {
		binary.LittleEndian.PutUint16(entry[0x38+i*2:], uint16(r))
	}
	_, err = f.WriteAt(entry, 2*512+128)
	require.NoError(t, err)

	writeSuperblockAt(t, f, partOffset, "")
	require.NoError(t, f.Close())

	parts, err := partscan.Detect(path)
	require.NoError(t, err)
	require.Len(t, parts, 1)
	assert.Equal(t, partscan.SchemeGPT, parts[0].Scheme)
	assert.Equal(t, partOffset, parts[0].Offset)
	assert.Equal(t, 2, parts[0].Index)
	// The superblock has no label, so the GPT partition name is kept.
	assert.Equal(t, "data", parts[0].Label)
}

func TestDetectNoFilesystemFound(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	parts, err := partscan.Detect(path)
	require.NoError(t, err)
	assert.Empty(t, parts)
}
