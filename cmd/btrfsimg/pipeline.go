// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/diskio"
	"github.com/coldtrace/btrfsimg/internal/fsimage"
	"github.com/coldtrace/btrfsimg/internal/superblock"
)

// decodedImage bundles everything a subcommand needs after a successful
// decode: the open device (for C7 reads), the decoded superblock, and the
// merged filesystem model.
type decodedImage struct {
	dev *diskio.Device
	sb  *superblock.Superblock
	fs  *fsimage.FileSystem
}

// openImage runs the full C2→C3(seed)→C4(chunk tree)→C3(complete)→C5
// decode pipeline against the image at path, treating partitionOffset as
// the start of the in-partition byte range.
func openImage(path string, partitionOffset btrfsvol.PhysicalAddr) (*decodedImage, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("btrfsimg: ImageNotFound: %w", err)
	}
	raw := make([]byte, 4096)
	_, err = f.ReadAt(raw, int64(partitionOffset)+superblock.PrimaryOffset)
	closeErr := f.Close()
	if err != nil {
		return nil, fmt.Errorf("reading superblock: %w", err)
	}
	if closeErr != nil {
		return nil, fmt.Errorf("reading superblock: %w", closeErr)
	}

	sb, err := superblock.Read(raw)
	if err != nil {
		return nil, fmt.Errorf("decoding superblock: %w", err)
	}

	chunks, err := sb.SeedChunkMap(partitionOffset)
	if err != nil {
		return nil, fmt.Errorf("seeding chunk map: %w", err)
	}

	dev, err := diskio.Open(path, sb.NodeSize, chunks)
	if err != nil {
		return nil, fmt.Errorf("opening device: %w", err)
	}

	chunkWarnings, err := diskio.CompleteChunkMap(dev, sb.ChunkTree, chunks)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("completing chunk map: %w", err)
	}

	fs, err := fsimage.Build(dev, sb.RootTree)
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("decoding filesystem: %w", err)
	}
	if chunkWarnings != nil {
		fs.Errors = append(fs.Errors, fmt.Errorf("completing chunk map: %w", chunkWarnings))
	}

	return &decodedImage{dev: dev, sb: sb, fs: fs}, nil
}

func (d *decodedImage) Close() error {
	return d.dev.Close()
}
