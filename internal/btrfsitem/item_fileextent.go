// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// FileExtent is the EXTENT_DATA payload: key.ObjectID is the inode,
// key.Offset is the file byte offset the extent begins at.
type FileExtent struct { // EXTENT_DATA=108
	Generation btrfsprim.Generation `bin:"off=0x0, siz=0x8"`
	RAMBytes   int64                `bin:"off=0x8, siz=0x8"`

	Compression   CompressionType `bin:"off=0x10, siz=0x1"`
	Encryption    uint8           `bin:"off=0x11, siz=0x1"`
	OtherEncoding uint16          `bin:"off=0x12, siz=0x2"`

	Type FileExtentType `bin:"off=0x14, siz=0x1"`

	binstruct.End `bin:"off=0x15"`

	BodyInline []byte           `bin:"-"` // only when Type == FileExtentInline
	BodyExtent FileExtentExtent `bin:"-"` // only when Type == FileExtentReg/Prealloc
}

func (FileExtent) isItem() {}

// FileExtentExtent is the 32-byte tail present on regular/prealloc extents.
type FileExtentExtent struct {
	DiskByteNr   btrfsvol.LogicalAddr `bin:"off=0x0, siz=0x8"`
	DiskNumBytes btrfsvol.AddrDelta   `bin:"off=0x8, siz=0x8"`
	Offset       btrfsvol.AddrDelta   `bin:"off=0x10, siz=0x8"`
	NumBytes     int64                `bin:"off=0x18, siz=0x8"`
	binstruct.End `bin:"off=0x20"`
}

func (o *FileExtent) UnmarshalBinary(dat []byte) (int, error) {
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	switch o.Type {
	case FileExtentInline:
		o.BodyInline = append([]byte(nil), dat[n:]...)
		n += len(o.BodyInline)
	case FileExtentReg, FileExtentPrealloc:
		_n, err := binstruct.Unmarshal(dat[n:], &o.BodyExtent)
		n += _n
		if err != nil {
			return n, err
		}
	default:
		return n, fmt.Errorf("unknown file extent type %v", o.Type)
	}
	return n, nil
}

func (o FileExtent) MarshalBinary() ([]byte, error) {
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	switch o.Type {
	case FileExtentInline:
		dat = append(dat, o.BodyInline...)
	case FileExtentReg, FileExtentPrealloc:
		bs, err := binstruct.Marshal(o.BodyExtent)
		dat = append(dat, bs...)
		if err != nil {
			return dat, err
		}
	default:
		return dat, fmt.Errorf("unknown file extent type %v", o.Type)
	}
	return dat, nil
}

// Size returns the decompressed size this extent contributes to the file.
func (o FileExtent) Size() (int64, error) {
	switch o.Type {
	case FileExtentInline:
		if o.Compression != CompressNone {
			return o.RAMBytes, nil
		}
		return int64(len(o.BodyInline)), nil
	case FileExtentReg, FileExtentPrealloc:
		return o.BodyExtent.NumBytes, nil
	default:
		return 0, fmt.Errorf("unknown file extent type %v", o.Type)
	}
}

// IsHole reports whether this is a sparse hole (disk_bytenr == 0).
func (o FileExtent) IsHole() bool {
	return (o.Type == FileExtentReg || o.Type == FileExtentPrealloc) && o.BodyExtent.DiskByteNr == 0
}

type FileExtentType uint8

const (
	FileExtentInline FileExtentType = iota
	FileExtentReg
	FileExtentPrealloc
)

var fileExtentTypeNames = []string{"inline", "regular", "prealloc"}

func (t FileExtentType) String() string {
	if int(t) < len(fileExtentTypeNames) {
		return fileExtentTypeNames[t]
	}
	return fmt.Sprintf("unknown(%d)", uint8(t))
}

// CompressionType is the compression-tag byte identifying the pluggable
// decoder an extent's bytes need.
type CompressionType uint8

const (
	CompressNone CompressionType = iota
	CompressZlib
	CompressLZO
	CompressZstd
)

var compressionTypeNames = []string{"none", "zlib", "lzo", "zstd"}

func (c CompressionType) String() string {
	if int(c) < len(compressionTypeNames) {
		return compressionTypeNames[c]
	}
	return fmt.Sprintf("unknown(%d)", uint8(c))
}
