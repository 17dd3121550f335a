// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

// CSumSize is the width of one checksum slot: the payload is a packed array
// of 4-byte CRC32C values. Other btrfs checksum algorithms (xxhash64,
// sha256, blake2b) produce wider slots but are outside what this decoder
// claims to read.
const CSumSize = 4

// ExtentCSum is the EXTENT_CSUM payload: key.Offset (aliased here as
// LogicalStart) is the logical address the first checksum slot covers.
type ExtentCSum struct { // EXTENT_CSUM=128
	ChecksumSize int
	LogicalStart btrfsprim.ObjID
	Sums         [][CSumSize]byte
}

func (ExtentCSum) isItem() {}

func (o *ExtentCSum) UnmarshalBinary(dat []byte) (int, error) {
	if o.ChecksumSize == 0 {
		o.ChecksumSize = CSumSize
	}
	if o.ChecksumSize != CSumSize {
		return 0, fmt.Errorf("unsupported checksum size %d", o.ChecksumSize)
	}
	for len(dat) >= o.ChecksumSize {
		var sum [CSumSize]byte
		copy(sum[:], dat[:o.ChecksumSize])
		dat = dat[o.ChecksumSize:]
		o.Sums = append(o.Sums, sum)
	}
	return len(o.Sums) * o.ChecksumSize, nil
}

func (o ExtentCSum) MarshalBinary() ([]byte, error) {
	dat := make([]byte, 0, len(o.Sums)*CSumSize)
	for _, sum := range o.Sums {
		dat = append(dat, sum[:]...)
	}
	return dat, nil
}
