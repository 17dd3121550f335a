// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/fsimage"
)

func newTestFS() *fsimage.FileSystem {
	return &fsimage.FileSystem{
		Subvolumes: make(map[btrfsprim.ObjID]*fsimage.Subvolume),
		Names:      make(map[fsimage.UniqInode]string),
		ParentOf:   make(map[fsimage.UniqInode]fsimage.UniqInode),
	}
}

func TestBuildPathDefaultSubvolume(t *testing.T) {
	fs := newTestFS()
	root := fsimage.NewUniqInode(btrfsprim.ObjIDFSTree, 256)
	dir := fsimage.NewUniqInode(btrfsprim.ObjIDFSTree, 257)
	file := fsimage.NewUniqInode(btrfsprim.ObjIDFSTree, 258)

	fs.Subvolumes[btrfsprim.ObjIDFSTree] = &fsimage.Subvolume{ID: btrfsprim.ObjIDFSTree, IsDefault: true}
	fs.Names[dir] = "etc"
	fs.ParentOf[dir] = root
	fs.Names[file] = "passwd"
	fs.ParentOf[file] = dir

	assert.Equal(t, "/etc/passwd", fs.BuildPath(file))
	assert.Equal(t, "/", fs.BuildPath(root))
}

func TestBuildPathNamedSubvolume(t *testing.T) {
	fs := newTestFS()
	const subvolID = btrfsprim.ObjID(257)
	root := fsimage.NewUniqInode(subvolID, 256)
	file := fsimage.NewUniqInode(subvolID, 257)

	fs.Subvolumes[subvolID] = &fsimage.Subvolume{ID: subvolID, Name: "snap1"}
	fs.Names[file] = "data.txt"
	fs.ParentOf[file] = root

	assert.Equal(t, "/snap1/data.txt", fs.BuildPath(file))
}

func TestBuildPathFallbackSubvolumeName(t *testing.T) {
	fs := newTestFS()
	const subvolID = btrfsprim.ObjID(300)
	root := fsimage.NewUniqInode(subvolID, 256)

	fs.Subvolumes[subvolID] = &fsimage.Subvolume{ID: subvolID}

	assert.Equal(t, "/subvol_300", fs.BuildPath(root))
}

func TestBuildPathCycleGuard(t *testing.T) {
	fs := newTestFS()
	const subvolID = btrfsprim.ObjID(5)
	a := fsimage.NewUniqInode(subvolID, 300)
	b := fsimage.NewUniqInode(subvolID, 301)

	fs.Subvolumes[subvolID] = &fsimage.Subvolume{ID: subvolID, IsDefault: true}
	fs.Names[a] = "a"
	fs.ParentOf[a] = b
	fs.Names[b] = "b"
	fs.ParentOf[b] = a

	assert.NotPanics(t, func() { fs.BuildPath(a) })
}
