// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/linuxmode"
)

// Inode is the 160-byte INODE_ITEM payload.
type Inode struct { // INODE_ITEM=1
	Generation    btrfsprim.Generation `bin:"off=0x00, siz=0x08"`
	TransID       int64                `bin:"off=0x08, siz=0x08"`
	Size          int64                `bin:"off=0x10, siz=0x08"`
	NumBytes      int64                `bin:"off=0x18, siz=0x08"`
	BlockGroup    int64                `bin:"off=0x20, siz=0x08"`
	NLink         int32                `bin:"off=0x28, siz=0x04"`
	UID           int32                `bin:"off=0x2C, siz=0x04"`
	GID           int32                `bin:"off=0x30, siz=0x04"`
	Mode          linuxmode.StatMode   `bin:"off=0x34, siz=0x04"`
	RDev          int64                `bin:"off=0x38, siz=0x08"`
	Flags         InodeFlags           `bin:"off=0x40, siz=0x08"`
	Sequence      int64                `bin:"off=0x48, siz=0x08"`
	Reserved      [4]int64             `bin:"off=0x50, siz=0x20"`
	ATime         btrfsprim.Time       `bin:"off=0x70, siz=0x0c"`
	CTime         btrfsprim.Time       `bin:"off=0x7c, siz=0x0c"`
	MTime         btrfsprim.Time       `bin:"off=0x88, siz=0x0c"`
	OTime         btrfsprim.Time       `bin:"off=0x94, siz=0x0c"`
	binstruct.End `bin:"off=0xa0"`
}

func (Inode) isItem() {}

// InodeFlags are the persisted inode attribute bits.
type InodeFlags uint64

const (
	InodeNodatasum InodeFlags = 1 << iota
	InodeNodatacow
	InodeReadonly
	InodeNocompress
	InodePrealloc
	InodeSync
	InodeImmutable
	InodeAppend
	InodeNodump
	InodeNoatime
	InodeDirsync
	InodeCompress
)

var inodeFlagNames = []string{
	"NODATASUM", "NODATACOW", "READONLY", "NOCOMPRESS",
	"PREALLOC", "SYNC", "IMMUTABLE", "APPEND",
	"NODUMP", "NOATIME", "DIRSYNC", "COMPRESS",
}

func (f InodeFlags) Has(req InodeFlags) bool { return f&req == req }
func (f InodeFlags) String() string          { return bitfieldString(uint64(f), inodeFlagNames) }

// FlagsString comma-joins the recognized flag names set on f, e.g.
// "NODATASUM, NODATACOW, ...".
func (f InodeFlags) FlagsString() string {
	var names []string
	for i, name := range inodeFlagNames {
		if f&(1<<uint(i)) != 0 {
			names = append(names, name)
		}
	}
	return joinComma(names)
}

func joinComma(ss []string) string {
	out := ""
	for i, s := range ss {
		if i > 0 {
			out += ", "
		}
		out += s
	}
	return out
}
