// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// BlockGroupFlags is the allocation-profile/RAID-level bitmask in a chunk
// header.
type BlockGroupFlags uint64

// Chunk is the CHUNK_ITEM payload: key.Offset is the logical start address
// it covers.
type Chunk struct { // CHUNK_ITEM=228
	Head    ChunkHeader
	Stripes []ChunkStripe
}

func (Chunk) isItem() {}

type ChunkHeader struct {
	Size           btrfsvol.AddrDelta `bin:"off=0x0,  siz=0x8"`
	Owner          btrfsprim.ObjID    `bin:"off=0x8,  siz=0x8"`
	StripeLen      uint64             `bin:"off=0x10, siz=0x8"`
	Type           BlockGroupFlags    `bin:"off=0x18, siz=0x8"`
	IOOptimalAlign uint32             `bin:"off=0x20, siz=0x4"`
	IOOptimalWidth uint32             `bin:"off=0x24, siz=0x4"`
	IOMinSize      uint32             `bin:"off=0x28, siz=0x4"`
	NumStripes     uint16             `bin:"off=0x2c, siz=0x2"`
	SubStripes     uint16             `bin:"off=0x2e, siz=0x2"`
	binstruct.End  `bin:"off=0x30"`
}

type ChunkStripe struct {
	DeviceID      btrfsvol.DeviceID     `bin:"off=0x0,  siz=0x8"`
	Offset        btrfsvol.PhysicalAddr `bin:"off=0x8,  siz=0x8"`
	DeviceUUID    btrfsprim.UUID        `bin:"off=0x10, siz=0x10"`
	binstruct.End `bin:"off=0x20"`
}

// Mapping returns the ChunkMap entry for this chunk's first stripe — RAID
// reconstruction beyond stripe 0 is out of scope.
func (chunk Chunk) Mapping(key btrfsprim.Key) (btrfsvol.Mapping, bool) {
	if len(chunk.Stripes) == 0 {
		return btrfsvol.Mapping{}, false
	}
	return btrfsvol.Mapping{
		LogicalAddr:  btrfsvol.LogicalAddr(key.Offset),
		PhysicalAddr: chunk.Stripes[0].Offset,
		Length:       chunk.Head.Size,
		SizeLocked:   true,
	}, true
}

func (chunk *Chunk) UnmarshalBinary(dat []byte) (int, error) {
	n, err := binstruct.Unmarshal(dat, &chunk.Head)
	if err != nil {
		return n, err
	}
	chunk.Stripes = make([]ChunkStripe, chunk.Head.NumStripes)
	for i := range chunk.Stripes {
		_n, err := binstruct.Unmarshal(dat[n:], &chunk.Stripes[i])
		n += _n
		if err != nil {
			return n, err
		}
	}
	return n, nil
}

func (chunk Chunk) MarshalBinary() ([]byte, error) {
	chunk.Head.NumStripes = uint16(len(chunk.Stripes))
	ret, err := binstruct.Marshal(chunk.Head)
	if err != nil {
		return ret, err
	}
	for _, stripe := range chunk.Stripes {
		bs, err := binstruct.Marshal(stripe)
		ret = append(ret, bs...)
		if err != nil {
			return ret, err
		}
	}
	return ret, nil
}
