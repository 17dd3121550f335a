// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package diskio_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/diskio"
)

func TestReadNodeUnmappedAddrIsError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	require.NoError(t, os.WriteFile(path, make([]byte, 4096), 0o644))

	chunks := btrfsvol.NewChunkMap(0)
	dev, err := diskio.Open(path, 4096, chunks)
	require.NoError(t, err)
	defer dev.Close()

	_, err = dev.ReadNode(btrfsvol.LogicalAddr(0x1234))
	require.Error(t, err)
}

func TestReadAtReadsAbsoluteOffset(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "image")
	data := make([]byte, 8192)
	data[4096] = 0xAB
	require.NoError(t, os.WriteFile(path, data, 0o644))

	chunks := btrfsvol.NewChunkMap(0)
	dev, err := diskio.Open(path, 4096, chunks)
	require.NoError(t, err)
	defer dev.Close()

	buf := make([]byte, 1)
	_, err = dev.ReadAt(buf, btrfsvol.PhysicalAddr(4096))
	require.NoError(t, err)
	require.Equal(t, byte(0xAB), buf[0])
}
