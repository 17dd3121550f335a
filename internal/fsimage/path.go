// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

import (
	"strings"

	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

// subvolumeRootInode is the well-known objectid every subvolume's own root
// directory carries within that subvolume's tree: 256.
const subvolumeRootInode = btrfsprim.ObjIDFirstFree

// subvolumeMountLabel returns the path component a subvolume contributes at
// its mount point: its ROOT_REF display name, or a synthesized
// "subvol_<objectid>" fallback when the source image recorded no name.
func (fs *FileSystem) subvolumeMountLabel(sv *Subvolume) string {
	if sv.IsDefault {
		return ""
	}
	if sv.Name != "" {
		return sv.Name
	}
	return subvolFallbackName(sv.ID)
}

func subvolFallbackName(id btrfsprim.ObjID) string {
	return "subvol_" + itoa(uint64(id))
}

func itoa(v uint64) string {
	if v == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// BuildPath resolves the absolute path of uniq by walking ParentOf until it
// reaches that subvolume's own root directory, then prepends the
// subvolume's mount label. A seen-set guards against a parent cycle a
// corrupted image might otherwise loop on forever.
func (fs *FileSystem) BuildPath(uniq UniqInode) string {
	subvolID := uniq.SubvolID()
	sv := fs.Subvolumes[subvolID]

	var components []string
	seen := make(map[UniqInode]bool)
	cur := uniq
	for {
		if seen[cur] {
			break
		}
		seen[cur] = true

		if cur.InodeID() == subvolumeRootInode {
			break
		}

		name, hasName := fs.Names[cur]
		parent, hasParent := fs.ParentOf[cur]
		if !hasName || !hasParent {
			break
		}
		components = append(components, name)
		cur = parent
	}

	// components were collected child-to-root; reverse them.
	for i, j := 0, len(components)-1; i < j; i, j = i+1, j-1 {
		components[i], components[j] = components[j], components[i]
	}

	label := ""
	if sv != nil {
		label = fs.subvolumeMountLabel(sv)
	}

	parts := make([]string, 0, len(components)+1)
	if label != "" {
		parts = append(parts, label)
	}
	parts = append(parts, components...)
	return "/" + strings.Join(parts, "/")
}
