// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

import (
	"bytes"
	"compress/zlib"
	"io"
	"sort"

	"github.com/klauspost/compress/zstd"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// decoder decompresses a whole inline/extent payload at once; compression
// is scoped to a single extent's worth of bytes, which is never large
// enough to need streaming.
type decoder func(compressed []byte) ([]byte, error)

// decoders is the pluggable compression-tag table: the absence of an entry
// means skip, not fail. LZO has no entry — no ecosystem LZO decoder
// appears anywhere in this module's dependency stack, so extents
// compressed with it are silently skipped exactly like any other missing
// decoder, never an error.
var decoders = map[btrfsitem.CompressionType]decoder{
	btrfsitem.CompressNone: func(b []byte) ([]byte, error) { return b, nil },
	btrfsitem.CompressZlib: decodeZlib,
	btrfsitem.CompressZstd: decodeZstd,
}

func decodeZlib(compressed []byte) ([]byte, error) {
	r, err := zlib.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func decodeZstd(compressed []byte) ([]byte, error) {
	r, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

// PhysicalReader abstracts the positioned read a file reconstruction needs;
// satisfied by internal/diskio.Device.
type PhysicalReader interface {
	ReadAt(p []byte, off btrfsvol.PhysicalAddr) (int, error)
}

// FileExtentAt pairs a decoded FileExtent with the file-byte offset its
// containing item's key carried (EXTENT_DATA's key.Offset) — the payload
// itself doesn't carry that offset, so walkSubvolume tags each one when
// collecting an inode's extent list.
type FileExtentAt struct {
	FileOffset int64
	Extent     btrfsitem.FileExtent
}

// ReadFileExtents reassembles a file's bytes from its extent list. Extents
// are sorted by file offset; holes are zero-filled; extents whose
// decompressor is unavailable are skipped (the result may come out short,
// never an error). If maxBytes is 0 the result is truncated to size.
func ReadFileExtents(extents []FileExtentAt, chunks *btrfsvol.ChunkMap, image PhysicalReader, size int64, maxBytes int64) []byte {
	sort.Slice(extents, func(i, j int) bool { return extents[i].FileOffset < extents[j].FileOffset })

	var out []byte
	for _, fe := range extents {
		e := fe.Extent
		switch e.Type {
		case btrfsitem.FileExtentInline:
			dec, ok := decoders[e.Compression]
			if !ok {
				continue
			}
			bs, err := dec(e.BodyInline)
			if err != nil {
				continue
			}
			out = append(out, bs...)

		case btrfsitem.FileExtentReg, btrfsitem.FileExtentPrealloc:
			if e.IsHole() {
				out = append(out, make([]byte, e.BodyExtent.NumBytes)...)
				continue
			}
			if e.Compression != btrfsitem.CompressNone {
				dec, ok := decoders[e.Compression]
				if !ok {
					continue
				}
				raw := make([]byte, e.BodyExtent.DiskNumBytes)
				paddr, ok := chunks.Lookup(e.BodyExtent.DiskByteNr)
				if !ok {
					continue
				}
				if _, err := image.ReadAt(raw, paddr); err != nil {
					continue
				}
				bs, err := dec(raw)
				if err != nil {
					continue
				}
				lo := e.BodyExtent.Offset
				hi := lo + btrfsvol.AddrDelta(e.BodyExtent.NumBytes)
				if int64(hi) > int64(len(bs)) {
					continue
				}
				out = append(out, bs[lo:hi]...)
				continue
			}
			paddr, ok := chunks.Lookup(e.BodyExtent.DiskByteNr)
			if !ok {
				continue
			}
			// Uncompressed extents read the whole disk_num_bytes
			// range as-is; only the compressed branch above slices
			// by Offset/NumBytes, since there the on-disk bytes
			// cover the full pre-slice region.
			buf := make([]byte, e.BodyExtent.DiskNumBytes)
			if _, err := image.ReadAt(buf, paddr); err != nil {
				continue
			}
			out = append(out, buf...)
		}
	}

	limit := size
	if maxBytes != 0 && maxBytes < limit {
		limit = maxBytes
	}
	if int64(len(out)) > limit {
		out = out[:limit]
	}
	return out
}

// ChecksumCount computes how many checksum-tree slots overlap extents'
// on-disk ranges: for each non-hole, non-inline extent, intersect its
// range against every known checksum range (each covering sectorSize
// bytes) and sum ceil(overlap / sectorSize).
func ChecksumCount(extents []FileExtentAt, checksums map[btrfsvol.LogicalAddr]int, sectorSize int64) int {
	if sectorSize <= 0 {
		sectorSize = 4096
	}
	count := 0
	for _, fe := range extents {
		e := fe.Extent
		if e.Type == btrfsitem.FileExtentInline || e.IsHole() {
			continue
		}
		start := e.BodyExtent.DiskByteNr
		length := int64(e.BodyExtent.DiskNumBytes)
		for csumStart, slots := range checksums {
			covered := int64(slots) * sectorSize
			csumEnd := csumStart.Add(btrfsvol.AddrDelta(covered))
			rangeStart := start
			rangeEnd := start.Add(btrfsvol.AddrDelta(length))
			lo := maxAddr(rangeStart, csumStart)
			hi := minAddr(rangeEnd, csumEnd)
			if hi <= lo {
				continue
			}
			overlap := hi.Sub(lo)
			count += int((int64(overlap) + sectorSize - 1) / sectorSize)
		}
	}
	return count
}

func maxAddr(a, b btrfsvol.LogicalAddr) btrfsvol.LogicalAddr {
	if a > b {
		return a
	}
	return b
}

func minAddr(a, b btrfsvol.LogicalAddr) btrfsvol.LogicalAddr {
	if a < b {
		return a
	}
	return b
}
