// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package fsimage joins the root tree, every subvolume tree, and the
// checksum tree into one unified inode/name/extent model (component C5),
// then builds paths (C6) and reassembles file content (C7) from it.
package fsimage

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfstree"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// UniqInode packs a subvolume id and an inode objectid into a single
// global identifier: (subvol_id << 48) | inode_objectid, a space-efficient
// join key. A proper pair type would read just as clearly, but the packed
// form stays a plain, comparable map key without a helper equality method.
type UniqInode uint64

// NewUniqInode packs a subvolume id and an inode objectid.
func NewUniqInode(subvolID btrfsprim.ObjID, inode btrfsprim.ObjID) UniqInode {
	return UniqInode(uint64(subvolID)<<48 | uint64(inode))
}

// SubvolID unpacks the subvolume id half.
func (u UniqInode) SubvolID() btrfsprim.ObjID { return btrfsprim.ObjID(uint64(u) >> 48) }

// InodeID unpacks the inode objectid half.
func (u UniqInode) InodeID() btrfsprim.ObjID { return btrfsprim.ObjID(uint64(u) & ((1 << 48) - 1)) }

// DirEntry is one directory listing entry (a decoded DIR_ITEM/DIR_INDEX),
// kept alongside the raw name/location so path resolution and listing can
// both use it.
type DirEntry struct {
	Name     string
	Location btrfsprim.Key
	Type     btrfsitem.FileType
}

// Xattr is one extended-attribute name/value pair.
type Xattr struct {
	Name  string
	Value []byte
}

// Subvolume describes one walked root-tree entry: the default filesystem
// tree (objectid 5) or a user subvolume/snapshot (objectid ≥ 256).
type Subvolume struct {
	ID        btrfsprim.ObjID
	RootAddr  btrfsvol.LogicalAddr
	Name      string // from ROOT_REF, empty for the default tree
	ParentID  btrfsprim.ObjID
	IsDefault bool
}

// FileSystem is the decoded, merged view of every subvolume in the image,
// keyed throughout by UniqInode.
type FileSystem struct {
	Subvolumes map[btrfsprim.ObjID]*Subvolume

	Inodes     map[UniqInode]btrfsitem.Inode
	Names      map[UniqInode]string
	ParentOf   map[UniqInode]UniqInode
	Children   map[UniqInode][]UniqInode
	DirEntries map[UniqInode][]DirEntry
	Xattrs     map[UniqInode][]Xattr
	Extents    map[UniqInode][]FileExtentAt

	// Checksums maps a checksum-tree item's key.Offset (the logical
	// start the item's slot array covers) to the count of 4-byte
	// CRC32C slots it holds. No CRC values themselves are kept.
	Checksums map[btrfsvol.LogicalAddr]int

	// ChecksumRootAddr is 0 if no checksum tree was found.
	ChecksumRootAddr btrfsvol.LogicalAddr

	// Errors accumulates non-fatal decode problems encountered across
	// every walk — malformed items are skipped, not fatal.
	Errors []error
}

func newFileSystem() *FileSystem {
	return &FileSystem{
		Subvolumes: make(map[btrfsprim.ObjID]*Subvolume),
		Inodes:     make(map[UniqInode]btrfsitem.Inode),
		Names:      make(map[UniqInode]string),
		ParentOf:   make(map[UniqInode]UniqInode),
		Children:   make(map[UniqInode][]UniqInode),
		DirEntries: make(map[UniqInode][]DirEntry),
		Xattrs:     make(map[UniqInode][]Xattr),
		Extents:    make(map[UniqInode][]FileExtentAt),
		Checksums:  make(map[btrfsvol.LogicalAddr]int),
	}
}

func (fs *FileSystem) recordf(format string, args ...any) {
	fs.Errors = append(fs.Errors, fmt.Errorf(format, args...))
}

// Build runs the full three-phase decode: enumerate roots from the root
// tree, walk every subvolume tree, then walk the checksum tree.
func Build(source btrfstree.NodeSource, rootTreeAddr btrfsvol.LogicalAddr) (*FileSystem, error) {
	fs := newFileSystem()

	rootWalker := btrfstree.NewWalker(source)
	if err := fs.enumerateRoots(rootWalker, rootTreeAddr); err != nil {
		return nil, fmt.Errorf("fsimage: enumerating roots: %w", err)
	}
	if rootErrs := rootWalker.Errors(); rootErrs != nil {
		fs.recordf("root tree walk: %w", rootErrs)
	}

	for id, sv := range fs.Subvolumes {
		if id == btrfsprim.ObjIDCsumTree {
			fs.ChecksumRootAddr = sv.RootAddr
			continue
		}
		// Only the default filesystem tree and user subvolumes carry
		// inodes; the other well-known trees (extent, dev, uuid, ...)
		// hold item kinds this decoder has no use for.
		if !sv.IsDefault && !btrfsitem.IsSubvolumeRootID(id) {
			continue
		}
		if sv.RootAddr == 0 {
			fs.recordf("subvolume %v: no usable root address, skipping", id)
			continue
		}
		w := btrfstree.NewWalker(source)
		if err := fs.walkSubvolume(w, sv); err != nil {
			fs.recordf("subvolume %v: %w", id, err)
		}
		if werrs := w.Errors(); werrs != nil {
			fs.recordf("subvolume %v walk: %w", id, werrs)
		}
	}

	if fs.ChecksumRootAddr != 0 {
		w := btrfstree.NewWalker(source)
		if err := fs.walkChecksumTree(w); err != nil {
			fs.recordf("checksum tree: %w", err)
		}
		if werrs := w.Errors(); werrs != nil {
			fs.recordf("checksum tree walk: %w", werrs)
		}
	}

	return fs, nil
}

// enumerateRoots is Phase 1: collect every ROOT_ITEM's bytenr and every
// ROOT_REF's display name, and classify the default tree, user
// subvolumes, and the checksum tree.
func (fs *FileSystem) enumerateRoots(w *btrfstree.Walker, rootTreeAddr btrfsvol.LogicalAddr) error {
	return w.Walk(rootTreeAddr, func(item btrfstree.Item) error {
		switch item.Key.Kind {
		case btrfsprim.KindRootItem:
			root, ok := item.Body.(btrfsitem.Root)
			if !ok {
				fs.recordf("ROOT_ITEM %v: %v", item.Key, item.Body)
				return nil
			}
			id := item.Key.ObjectID
			sv := fs.subvolume(id)
			sv.RootAddr = root.ByteNr
			sv.IsDefault = id == btrfsprim.ObjIDFSTree

		case btrfsprim.KindRootRef:
			ref, ok := item.Body.(btrfsitem.RootRef)
			if !ok {
				fs.recordf("ROOT_REF %v: %v", item.Key, item.Body)
				return nil
			}
			childID := item.Key.Offset
			sv := fs.subvolume(btrfsprim.ObjID(childID))
			sv.Name = string(ref.Name)
			sv.ParentID = item.Key.ObjectID
		}
		return nil
	})
}

func (fs *FileSystem) subvolume(id btrfsprim.ObjID) *Subvolume {
	sv, ok := fs.Subvolumes[id]
	if !ok {
		sv = &Subvolume{ID: id}
		fs.Subvolumes[id] = sv
	}
	return sv
}

// walkSubvolume is Phase 2: dispatch each leaf item by kind into the
// merged tables.
func (fs *FileSystem) walkSubvolume(w *btrfstree.Walker, sv *Subvolume) error {
	return w.Walk(sv.RootAddr, func(item btrfstree.Item) error {
		switch body := item.Body.(type) {
		case btrfsitem.Inode:
			uniq := NewUniqInode(sv.ID, item.Key.ObjectID)
			fs.Inodes[uniq] = body

		case btrfsitem.InodeRef:
			child := NewUniqInode(sv.ID, item.Key.ObjectID)
			parent := NewUniqInode(sv.ID, btrfsprim.ObjID(item.Key.Offset))
			fs.Names[child] = string(body.Name)
			fs.ParentOf[child] = parent
			fs.Children[parent] = append(fs.Children[parent], child)

		case btrfsitem.DirEntry:
			uniq := NewUniqInode(sv.ID, item.Key.ObjectID)
			switch item.Key.Kind {
			case btrfsprim.KindXattrItem:
				fs.Xattrs[uniq] = append(fs.Xattrs[uniq], Xattr{Name: string(body.Name), Value: body.Data})
			default: // DIR_ITEM, DIR_INDEX
				fs.DirEntries[uniq] = append(fs.DirEntries[uniq], DirEntry{
					Name:     string(body.Name),
					Location: body.Location,
					Type:     body.Type,
				})
			}

		case btrfsitem.FileExtent:
			uniq := NewUniqInode(sv.ID, item.Key.ObjectID)
			fs.Extents[uniq] = append(fs.Extents[uniq], FileExtentAt{
				FileOffset: int64(item.Key.Offset),
				Extent:     body,
			})

		case btrfsitem.Error:
			fs.recordf("subvolume %v item %v: %w", sv.ID, item.Key, body.Err)
		}
		return nil
	})
}

// walkChecksumTree is Phase 3: record checksum-slot counts keyed by the
// logical address each EXTENT_CSUM item's range starts at.
func (fs *FileSystem) walkChecksumTree(w *btrfstree.Walker) error {
	return w.Walk(fs.ChecksumRootAddr, func(item btrfstree.Item) error {
		if item.Key.Kind != btrfsprim.KindExtentCSum {
			return nil
		}
		sums, ok := item.Body.(btrfsitem.ExtentCSum)
		if !ok {
			fs.recordf("EXTENT_CSUM %v: %v", item.Key, item.Body)
			return nil
		}
		fs.Checksums[btrfsvol.LogicalAddr(item.Key.Offset)] = len(sums.Sums)
		return nil
	})
}
