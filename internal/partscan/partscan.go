// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package partscan enumerates MBR and GPT partition tables in a disk image
// and probes each candidate for a valid btrfs superblock.
package partscan

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"golang.org/x/text/encoding/unicode"

	"github.com/coldtrace/btrfsimg/internal/superblock"
)

const sectorSize = 512

// Scheme names the partitioning scheme a Partition was found under, or
// that none was found at all.
type Scheme string

const (
	SchemeMBR  Scheme = "MBR"
	SchemeGPT  Scheme = "GPT"
	SchemeBare Scheme = "bare"
)

// Partition is one detected, superblock-validated btrfs filesystem
// location within the image.
type Partition struct {
	Index  int
	Offset int64
	Size   int64
	Scheme Scheme
	Label  string
}

// Detect enumerates MBR entries first; if none yield a validated btrfs
// superblock, it falls back to GPT; if neither scheme is found at all, it
// treats the image as a bare filesystem at offset 0.
func Detect(imagePath string) ([]Partition, error) {
	f, err := os.Open(imagePath)
	if err != nil {
		return nil, fmt.Errorf("partscan: %w", err)
	}
	defer f.Close()

	schemeFound := false
	if mbrParts, err := readMBR(f); err == nil && len(mbrParts) > 0 {
		schemeFound = true
		var found []Partition
		for _, p := range mbrParts {
			if label, ok := probe(f, p.Offset); ok {
				p.Label = label
				found = append(found, p)
			}
		}
		if len(found) > 0 {
			return found, nil
		}
	}

	if gptParts, err := readGPT(f); err == nil && len(gptParts) > 0 {
		schemeFound = true
		var found []Partition
		for _, p := range gptParts {
			if label, ok := probe(f, p.Offset); ok {
				if label == "" {
					label = p.Label
				}
				p.Label = label
				found = append(found, p)
			}
		}
		if len(found) > 0 {
			return found, nil
		}
	}

	if schemeFound {
		return nil, nil
	}
	if label, ok := probe(f, 0); ok {
		size, _ := fileSize(f)
		return []Partition{{Index: 0, Offset: 0, Size: size, Scheme: SchemeBare, Label: label}}, nil
	}

	return nil, nil
}

func fileSize(f *os.File) (int64, error) {
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// probe reads the superblock at offset+PrimaryOffset and reports whether it
// validates, along with its label if so.
func probe(f *os.File, offset int64) (string, bool) {
	raw := make([]byte, 4096)
	n, err := f.ReadAt(raw, offset+superblock.PrimaryOffset)
	if err != nil && err != io.EOF {
		return "", false
	}
	if n < len(raw) {
		return "", false
	}
	sb, err := superblock.Read(raw)
	if err != nil {
		return "", false
	}
	return sb.LabelString(), true
}

// mbrEntry is one parsed, non-empty MBR partition table entry.
type mbrEntry struct {
	index      int
	lbaStart   uint32
	numSectors uint32
}

func readMBR(f *os.File) ([]Partition, error) {
	mbr := make([]byte, sectorSize)
	if _, err := f.ReadAt(mbr, 0); err != nil {
		return nil, err
	}
	if mbr[0x1FE] != 0x55 || mbr[0x1FF] != 0xAA {
		return nil, fmt.Errorf("partscan: no MBR signature")
	}

	var entries []mbrEntry
	for i := 0; i < 4; i++ {
		off := 0x1BE + i*16
		entry := mbr[off : off+16]
		partType := entry[0x04]
		lbaStart := binary.LittleEndian.Uint32(entry[0x08:0x0C])
		numSectors := binary.LittleEndian.Uint32(entry[0x0C:0x10])
		if partType == 0 || numSectors == 0 {
			continue
		}
		entries = append(entries, mbrEntry{index: i + 1, lbaStart: lbaStart, numSectors: numSectors})
	}

	parts := make([]Partition, 0, len(entries))
	for _, e := range entries {
		parts = append(parts, Partition{
			Index:  e.index,
			Offset: int64(e.lbaStart) * sectorSize,
			Size:   int64(e.numSectors) * sectorSize,
			Scheme: SchemeMBR,
		})
	}
	return parts, nil
}

var utf16le = unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewDecoder()

func decodeGPTName(raw []byte) string {
	decoded, err := utf16le.Bytes(raw)
	if err != nil {
		return ""
	}
	n := 0
	for n < len(decoded) && decoded[n] != 0 {
		n++
	}
	return string(decoded[:n])
}

func readGPT(f *os.File) ([]Partition, error) {
	header := make([]byte, sectorSize)
	if _, err := f.ReadAt(header, sectorSize); err != nil {
		return nil, err
	}
	if string(header[0:8]) != "EFI PART" {
		return nil, fmt.Errorf("partscan: no GPT signature")
	}

	entryLBA := binary.LittleEndian.Uint64(header[0x48:0x50])
	numEntries := binary.LittleEndian.Uint32(header[0x50:0x54])
	entrySize := binary.LittleEndian.Uint32(header[0x54:0x58])
	if entrySize == 0 || numEntries == 0 {
		return nil, fmt.Errorf("partscan: empty GPT partition array")
	}

	entriesData := make([]byte, uint64(numEntries)*uint64(entrySize))
	if _, err := f.ReadAt(entriesData, int64(entryLBA)*sectorSize); err != nil && err != io.EOF {
		return nil, err
	}

	var parts []Partition
	for i := uint32(0); i < numEntries; i++ {
		off := uint64(i) * uint64(entrySize)
		if off+uint64(entrySize) > uint64(len(entriesData)) {
			break
		}
		entry := entriesData[off : off+uint64(entrySize)]

		typeGUID := entry[0:16]
		empty := true
		for _, b := range typeGUID {
			if b != 0 {
				empty = false
				break
			}
		}
		if empty {
			continue
		}

		startLBA := binary.LittleEndian.Uint64(entry[0x20:0x28])
		endLBA := binary.LittleEndian.Uint64(entry[0x28:0x30])
		nameBytes := entry[0x38:0x80]

		parts = append(parts, Partition{
			Index:  int(i) + 1,
			Offset: int64(startLBA) * sectorSize,
			Size:   int64(endLBA-startLBA+1) * sectorSize,
			Scheme: SchemeGPT,
			Label:  decodeGPTName(nameBytes),
		})
	}
	return parts, nil
}
