// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/fsimage"
)

func TestUniqInodeRoundTrip(t *testing.T) {
	uniq := fsimage.NewUniqInode(257, 12345)
	assert.Equal(t, btrfsprim.ObjID(257), uniq.SubvolID())
	assert.Equal(t, btrfsprim.ObjID(12345), uniq.InodeID())
}

func TestUniqInodeDistinctSubvolumesDontCollide(t *testing.T) {
	a := fsimage.NewUniqInode(5, 256)
	b := fsimage.NewUniqInode(257, 256)
	assert.NotEqual(t, a, b)
	assert.Equal(t, btrfsprim.ObjID(256), a.InodeID())
	assert.Equal(t, btrfsprim.ObjID(256), b.InodeID())
}

func newPopulatedFS() *fsimage.FileSystem {
	const subvolID = btrfsprim.ObjID(5)
	root := fsimage.NewUniqInode(subvolID, 256)
	etc := fsimage.NewUniqInode(subvolID, 257)
	passwd := fsimage.NewUniqInode(subvolID, 258)

	fs := &fsimage.FileSystem{
		Subvolumes: map[btrfsprim.ObjID]*fsimage.Subvolume{
			subvolID: {ID: subvolID, IsDefault: true},
		},
		Inodes: map[fsimage.UniqInode]btrfsitem.Inode{
			passwd: {Size: 10, NLink: 1},
		},
		Names: map[fsimage.UniqInode]string{
			etc:    "etc",
			passwd: "passwd",
		},
		ParentOf: map[fsimage.UniqInode]fsimage.UniqInode{
			etc:    root,
			passwd: etc,
		},
		DirEntries: map[fsimage.UniqInode][]fsimage.DirEntry{
			root: {{Name: "etc", Location: btrfsprim.Key{ObjectID: 257}}},
			etc:  {{Name: "passwd", Location: btrfsprim.Key{ObjectID: 258}}},
		},
		Xattrs:    map[fsimage.UniqInode][]fsimage.Xattr{},
		Extents:   map[fsimage.UniqInode][]fsimage.FileExtentAt{},
		Checksums: map[btrfsvol.LogicalAddr]int{},
	}
	return fs
}

func TestFindInodeResolvesNestedPath(t *testing.T) {
	fs := newPopulatedFS()
	uniq, ok := fs.FindInode(5, "/etc/passwd")
	assert.True(t, ok)
	assert.Equal(t, fsimage.NewUniqInode(5, 258), uniq)
}

func TestFindInodeMissingComponent(t *testing.T) {
	fs := newPopulatedFS()
	_, ok := fs.FindInode(5, "/etc/shadow")
	assert.False(t, ok)
}

func TestBuildEntriesResolvesPathAndSize(t *testing.T) {
	fs := newPopulatedFS()
	entries := fs.BuildEntries(btrfsvol.NewChunkMap(0), 4096)
	require := assert.New(t)
	require.Len(entries, 1)
	require.Equal("/etc/passwd", entries[0].Path)
	require.Equal(int64(10), entries[0].Size)
}

func TestSummarize(t *testing.T) {
	entries := []fsimage.FileEntry{
		{Type: "file", ExtentCount: 2, DiskBytes: 100, SubvolumeID: 5},
		{Type: "directory", ExtentCount: 0, DiskBytes: 0, SubvolumeID: 5},
		{Type: "file", ExtentCount: 1, DiskBytes: 50, SubvolumeID: 257},
	}
	s := fsimage.Summarize(entries)
	assert.Equal(t, 3, s.TotalEntries)
	assert.Equal(t, 2, s.ByType["file"])
	assert.Equal(t, 1, s.ByType["directory"])
	assert.Equal(t, 3, s.TotalExtents)
	assert.Equal(t, int64(150), s.TotalDiskBytes)
	assert.Equal(t, 2, s.Subvolumes)
}
