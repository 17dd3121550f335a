// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

// Summary is the set of cheap aggregate counters a caller typically wants
// alongside a file listing — counts per file type, total extent count, and
// total on-disk bytes. These mirror what a statistics pass over the
// original tool's output tabulates, computed by Summarize from an
// already-built FileEntry list rather than a separate rendering stage.
type Summary struct {
	TotalEntries   int
	ByType         map[string]int
	TotalExtents   int
	TotalDiskBytes int64
	Subvolumes     int
}

// Summarize aggregates entries into a Summary.
func Summarize(entries []FileEntry) Summary {
	s := Summary{ByType: make(map[string]int)}
	subvols := make(map[uint64]bool)
	for _, e := range entries {
		s.TotalEntries++
		s.ByType[e.Type]++
		s.TotalExtents += e.ExtentCount
		s.TotalDiskBytes += e.DiskBytes
		subvols[uint64(e.SubvolumeID)] = true
	}
	s.Subvolumes = len(subvols)
	return s
}
