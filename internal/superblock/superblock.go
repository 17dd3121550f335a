// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package superblock decodes the fixed-offset filesystem superblock and
// bootstraps the chunk map from its embedded system-chunk array.
package superblock

import (
	"bytes"
	"fmt"
	"hash/crc32"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// PrimaryOffset is the fixed offset, relative to the start of the
// partition, at which the primary superblock lives. Mirror copies at 64MiB
// and 256GiB exist on-disk but the primary suffices for a read-only
// forensic pass.
const PrimaryOffset = 0x10000

// magic is the fixed 8-byte tag every valid btrfs superblock begins its
// magic field with.
var magic = [8]byte{'_', 'B', 'H', 'R', 'f', 'S', '_', 'M'}

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// InvalidSuperblockError reports a superblock that failed to validate —
// either the magic didn't match or the checksum didn't. It's the on-disk
// counterpart of an unmappable root tree: both mean "this isn't usable",
// never "retry".
type InvalidSuperblockError struct {
	Reason string
}

func (e *InvalidSuperblockError) Error() string {
	return fmt.Sprintf("invalid superblock: %s", e.Reason)
}

// Superblock is the 4096-byte structure at PrimaryOffset describing the
// whole filesystem: its checksum, identity, node/sector sizes, the logical
// addresses of the root and chunk trees, and the embedded system-chunk
// array needed to bootstrap logical-to-physical translation before the
// chunk tree itself can be read.
type Superblock struct {
	Checksum   [32]byte              `bin:"off=0x0,  siz=0x20"`
	FSUUID     btrfsprim.UUID        `bin:"off=0x20, siz=0x10"`
	Self       btrfsvol.PhysicalAddr `bin:"off=0x30, siz=0x8"`
	Flags      uint64                `bin:"off=0x38, siz=0x8"`
	Magic      [8]byte               `bin:"off=0x40, siz=0x8"`
	Generation btrfsprim.Generation  `bin:"off=0x48, siz=0x8"`

	RootTree  btrfsvol.LogicalAddr `bin:"off=0x50, siz=0x8"`
	ChunkTree btrfsvol.LogicalAddr `bin:"off=0x58, siz=0x8"`
	LogTree   btrfsvol.LogicalAddr `bin:"off=0x60, siz=0x8"`

	LogRootTransID  uint64          `bin:"off=0x68, siz=0x8"`
	TotalBytes      uint64          `bin:"off=0x70, siz=0x8"`
	BytesUsed       uint64          `bin:"off=0x78, siz=0x8"`
	RootDirObjectID btrfsprim.ObjID `bin:"off=0x80, siz=0x8"`
	NumDevices      uint64          `bin:"off=0x88, siz=0x8"`

	SectorSize        uint32 `bin:"off=0x90, siz=0x4"`
	NodeSize          uint32 `bin:"off=0x94, siz=0x4"`
	LeafSize          uint32 `bin:"off=0x98, siz=0x4"`
	StripeSize        uint32 `bin:"off=0x9c, siz=0x4"`
	SysChunkArraySize uint32 `bin:"off=0xa0, siz=0x4"`

	ChunkRootGeneration btrfsprim.Generation `bin:"off=0xa4, siz=0x8"`
	CompatFlags         uint64               `bin:"off=0xac, siz=0x8"`
	CompatROFlags       uint64               `bin:"off=0xb4, siz=0x8"`
	IncompatFlags       IncompatFlags        `bin:"off=0xbc, siz=0x8"`
	ChecksumType        uint16               `bin:"off=0xc4, siz=0x2"`

	RootLevel  uint8 `bin:"off=0xc6, siz=0x1"`
	ChunkLevel uint8 `bin:"off=0xc7, siz=0x1"`
	LogLevel   uint8 `bin:"off=0xc8, siz=0x1"`

	DevItem btrfsitem.Dev `bin:"off=0xc9,  siz=0x62"`
	Label   [0x100]byte   `bin:"off=0x12b, siz=0x100"`

	CacheGeneration    btrfsprim.Generation `bin:"off=0x22b, siz=0x8"`
	UUIDTreeGeneration btrfsprim.Generation `bin:"off=0x233, siz=0x8"`
	MetadataUUID       btrfsprim.UUID       `bin:"off=0x23b, siz=0x10"`

	Reserved [224]byte `bin:"off=0x24b, siz=0xe0"`

	SysChunkArray [0x800]byte  `bin:"off=0x32b, siz=0x800"`
	SuperRoots    [4]RootStash `bin:"off=0xb2b, siz=0x2a0"`

	Padding       [565]byte `bin:"off=0xdcb, siz=0x235"`
	binstruct.End `bin:"off=0x1000"`
}

// LabelString trims the NUL padding from the on-disk fixed-width label
// field.
func (sb Superblock) LabelString() string {
	return string(bytes.TrimRight(sb.Label[:], "\x00"))
}

// ValidateMagic checks the fixed magic tag.
func (sb Superblock) ValidateMagic() error {
	if sb.Magic != magic {
		return &InvalidSuperblockError{Reason: fmt.Sprintf("bad magic %q", sb.Magic[:])}
	}
	return nil
}

// ValidateChecksum recomputes the CRC32C over everything after the
// checksum field (offsets 0x20 through 0x1000) and compares it to the
// stored value. This reader only supports the CRC32C checksum algorithm;
// a superblock declaring any other ChecksumType still decodes, but its
// checksum can't be verified.
func (sb Superblock) ValidateChecksum(raw []byte) error {
	if len(raw) < 0x20 {
		return &InvalidSuperblockError{Reason: "short read"}
	}
	if sb.ChecksumType != 0 {
		return nil
	}
	calc := crc32.Checksum(raw[0x20:], castagnoli)
	var stored [4]byte
	copy(stored[:], sb.Checksum[:4])
	if uint32(stored[0])|uint32(stored[1])<<8|uint32(stored[2])<<16|uint32(stored[3])<<24 != calc {
		return &InvalidSuperblockError{Reason: "checksum mismatch"}
	}
	return nil
}

// IncompatFlags mirrors the on-disk incompat_flags bitmask.
type IncompatFlags uint64

const (
	FeatureIncompatMixedBackref IncompatFlags = 1 << iota
	FeatureIncompatDefaultSubvol
	FeatureIncompatMixedGroups
	FeatureIncompatCompressLZO
	FeatureIncompatCompressZSTD
	FeatureIncompatBigMetadata
	FeatureIncompatExtendedIRef
	FeatureIncompatRAID56
	FeatureIncompatSkinnyMetadata
	FeatureIncompatNoHoles
	FeatureIncompatMetadataUUID
	FeatureIncompatRAID1C34
	FeatureIncompatZoned
	FeatureIncompatExtentTreeV2
)

func (f IncompatFlags) Has(req IncompatFlags) bool { return f&req == req }

// EffectiveMetadataUUID returns the UUID tree-block headers are expected to
// carry — the FSUUID, unless the metadata-UUID feature bit redirects it.
func (sb Superblock) EffectiveMetadataUUID() btrfsprim.UUID {
	if !sb.IncompatFlags.Has(FeatureIncompatMetadataUUID) {
		return sb.FSUUID
	}
	return sb.MetadataUUID
}

// RootStash is one of the four rotating super-root backup slots. This
// reader doesn't fall back to them (the primary superblock is the only
// source of truth it trusts), but decodes them for completeness since
// they're in scope of every read.
type RootStash struct {
	TreeRoot    btrfsprim.ObjID      `bin:"off=0x0, siz=0x8"`
	TreeRootGen btrfsprim.Generation `bin:"off=0x8, siz=0x8"`

	ChunkRoot    btrfsprim.ObjID      `bin:"off=0x10, siz=0x8"`
	ChunkRootGen btrfsprim.Generation `bin:"off=0x18, siz=0x8"`

	ExtentRoot    btrfsprim.ObjID      `bin:"off=0x20, siz=0x8"`
	ExtentRootGen btrfsprim.Generation `bin:"off=0x28, siz=0x8"`

	FSRoot    btrfsprim.ObjID      `bin:"off=0x30, siz=0x8"`
	FSRootGen btrfsprim.Generation `bin:"off=0x38, siz=0x8"`

	DevRoot    btrfsprim.ObjID      `bin:"off=0x40, siz=0x8"`
	DevRootGen btrfsprim.Generation `bin:"off=0x48, siz=0x8"`

	ChecksumRoot    btrfsprim.ObjID      `bin:"off=0x50, siz=0x8"`
	ChecksumRootGen btrfsprim.Generation `bin:"off=0x58, siz=0x8"`

	TotalBytes uint64 `bin:"off=0x60, siz=0x8"`
	BytesUsed  uint64 `bin:"off=0x68, siz=0x8"`
	NumDevices uint64 `bin:"off=0x70, siz=0x8"`

	Unused [32]byte `bin:"off=0x78, siz=0x20"`

	TreeRootLevel     uint8 `bin:"off=0x98, siz=0x1"`
	ChunkRootLevel    uint8 `bin:"off=0x99, siz=0x1"`
	ExtentRootLevel   uint8 `bin:"off=0x9a, siz=0x1"`
	FSRootLevel       uint8 `bin:"off=0x9b, siz=0x1"`
	DevRootLevel      uint8 `bin:"off=0x9c, siz=0x1"`
	ChecksumRootLevel uint8 `bin:"off=0x9d, siz=0x1"`

	Padding       [10]byte `bin:"off=0x9e, siz=0xa"`
	binstruct.End `bin:"off=0xa8"`
}

// SysChunk is one (key, chunk_item) pair out of the superblock's embedded
// system-chunk array.
type SysChunk struct {
	Key   btrfsprim.Key
	Chunk btrfsitem.Chunk
}

func (sc *SysChunk) UnmarshalBinary(dat []byte) (int, error) {
	n, err := binstruct.Unmarshal(dat, &sc.Key)
	if err != nil {
		return n, err
	}
	_n, err := binstruct.Unmarshal(dat[n:], &sc.Chunk)
	n += _n
	return n, err
}

// ParseSysChunkArray decodes the valid prefix of SysChunkArray into its
// (key, chunk_item) pairs. It iterates until SysChunkArraySize is exhausted
// or a truncated trailing pair is seen; a truncated pair ends the scan with
// whatever complete pairs were already collected, not an error — the same
// graceful termination spec §4.3 describes for seed_from_sys_array.
func (sb Superblock) ParseSysChunkArray() ([]SysChunk, error) {
	dat := sb.SysChunkArray[:sb.SysChunkArraySize]
	var ret []SysChunk
	for len(dat) > 0 {
		var pair SysChunk
		n, err := pair.UnmarshalBinary(dat)
		if err != nil {
			break
		}
		dat = dat[n:]
		ret = append(ret, pair)
	}
	return ret, nil
}

// Read decodes a Superblock out of a 4096-byte block already positioned at
// PrimaryOffset, and validates its magic and (when supported) checksum.
func Read(raw []byte) (*Superblock, error) {
	if len(raw) < 4096 {
		return nil, &InvalidSuperblockError{Reason: "short read"}
	}
	var sb Superblock
	if _, err := binstruct.Unmarshal(raw, &sb); err != nil {
		return nil, fmt.Errorf("superblock: %w", err)
	}
	if err := sb.ValidateMagic(); err != nil {
		return nil, err
	}
	if err := sb.ValidateChecksum(raw); err != nil {
		return nil, err
	}
	return &sb, nil
}

// SeedChunkMap builds a ChunkMap pre-populated with the SYSTEM chunks
// embedded in the superblock, enough to resolve the chunk tree's own root
// node.
func (sb Superblock) SeedChunkMap(partitionOffset btrfsvol.PhysicalAddr) (*btrfsvol.ChunkMap, error) {
	pairs, err := sb.ParseSysChunkArray()
	if err != nil {
		return nil, err
	}
	cm := btrfsvol.NewChunkMap(partitionOffset)
	for _, pair := range pairs {
		mapping, ok := pair.Chunk.Mapping(pair.Key)
		if !ok {
			continue
		}
		mapping.SizeLocked = true
		cm.AddMapping(mapping)
	}
	cm.MarkSeeded()
	return cm, nil
}
