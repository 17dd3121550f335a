// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

// DirEntry is the shared payload layout of DIR_ITEM, DIR_INDEX, and
// XATTR_ITEM — XATTR items reuse the same layout.
type DirEntry struct { // DIR_ITEM=84 DIR_INDEX=96 XATTR_ITEM=24
	Location      btrfsprim.Key `bin:"off=0x0, siz=0x11"`
	TransID       int64         `bin:"off=0x11, siz=8"`
	DataLen       uint16        `bin:"off=0x19, siz=2"`
	NameLen       uint16        `bin:"off=0x1b, siz=2"`
	Type          FileType      `bin:"off=0x1d, siz=1"`
	binstruct.End `bin:"off=0x1e"`
	Name          []byte `bin:"-"`
	Data          []byte `bin:"-"` // xattr value, only present for XATTR_ITEM
}

func (DirEntry) isItem() {}

func (o *DirEntry) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0x1e); err != nil {
		return 0, err
	}
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if o.NameLen > maxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", maxNameLen, o.NameLen)
	}
	if err := binstruct.NeedNBytes(dat, 0x1e+int(o.NameLen)+int(o.DataLen)); err != nil {
		return n, err
	}
	o.Name = append([]byte(nil), dat[n:n+int(o.NameLen)]...)
	n += int(o.NameLen)
	o.Data = append([]byte(nil), dat[n:n+int(o.DataLen)]...)
	n += int(o.DataLen)
	return n, nil
}

func (o DirEntry) MarshalBinary() ([]byte, error) {
	o.NameLen = uint16(len(o.Name))
	o.DataLen = uint16(len(o.Data))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	dat = append(dat, o.Name...)
	dat = append(dat, o.Data...)
	return dat, nil
}

// FileType is the directory-entry d_type byte.
type FileType uint8

const (
	FTUnknown FileType = iota
	FTRegFile
	FTDir
	FTChrdev
	FTBlkdev
	FTFifo
	FTSock
	FTSymlink
	FTXattr
)

var fileTypeNames = map[FileType]string{
	FTUnknown: "unknown",
	FTRegFile: "file",
	FTDir:     "directory",
	FTChrdev:  "chardev",
	FTBlkdev:  "blockdev",
	FTFifo:    "fifo",
	FTSock:    "socket",
	FTSymlink: "symlink",
	FTXattr:   "xattr",
}

func (ft FileType) String() string {
	if name, ok := fileTypeNames[ft]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", uint8(ft))
}
