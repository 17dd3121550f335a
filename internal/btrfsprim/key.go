// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
)

// ObjID is the object-identifier component of a Key. Several ranges are
// reserved; see the ObjID* constants.
type ObjID uint64

// Generation is a tree or item generation number (transaction id at which it
// was last written).
type Generation uint64

const (
	// ROOT_TREE_OBJECTID and friends: fixed, well-known object ids.
	ObjIDRootTree        = ObjID(1)
	ObjIDExtentTree      = ObjID(2)
	ObjIDChunkTree       = ObjID(3)
	ObjIDDevTree         = ObjID(4)
	ObjIDFSTree          = ObjID(5)
	ObjIDRootTreeDir     = ObjID(6)
	ObjIDCsumTree        = ObjID(7)
	ObjIDQuotaTree       = ObjID(8)
	ObjIDUUIDTree        = ObjID(9)
	ObjIDFreeSpaceTree   = ObjID(10)
	ObjIDFirstFree       = ObjID(256)
	ObjIDLastFree        = ObjID(1<<64 - 256)
)

// Kind is the item-type byte of a Key; it selects how the item's payload is
// interpreted (see package btrfsitem).
type Kind uint8

const (
	KindInodeItem    = Kind(1)
	KindInodeRef     = Kind(12)
	KindXattrItem    = Kind(24)
	KindDirItem      = Kind(84)
	KindDirIndex     = Kind(96)
	KindExtentData   = Kind(108)
	KindRootItem     = Kind(132)
	KindRootRef      = Kind(156)
	KindRootBackref  = Kind(144)
	KindExtentCSum   = Kind(128)
	KindChunkItem    = Kind(228)
	KindDevItem      = Kind(216)
)

// Key identifies a single item in a tree: a 17-byte packed
// (objectid, kind, offset) triple, totally ordered lexicographically in that
// field order.
type Key struct {
	ObjectID      ObjID         `bin:"off=0x0, siz=0x8"`
	Kind          Kind          `bin:"off=0x8, siz=0x1"`
	Offset        uint64        `bin:"off=0x9, siz=0x8"`
	binstruct.End `bin:"off=0x11"`
}

// Compare orders two keys lexicographically by (ObjectID, Kind, Offset).
func (k Key) Compare(o Key) int {
	switch {
	case k.ObjectID < o.ObjectID:
		return -1
	case k.ObjectID > o.ObjectID:
		return 1
	case k.Kind < o.Kind:
		return -1
	case k.Kind > o.Kind:
		return 1
	case k.Offset < o.Offset:
		return -1
	case k.Offset > o.Offset:
		return 1
	default:
		return 0
	}
}

func (k Key) Less(o Key) bool {
	return k.Compare(o) < 0
}

func (k Key) String() string {
	return fmt.Sprintf("(%d %d %d)", k.ObjectID, k.Kind, k.Offset)
}
