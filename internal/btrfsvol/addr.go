// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsvol translates between logical addresses (the filesystem's
// own virtual address space) and physical addresses (absolute byte offsets
// in an image file), via the chunk map.
package btrfsvol

import "fmt"

type (
	// PhysicalAddr is an absolute byte offset within the image file
	// (partition_offset already folded in).
	PhysicalAddr int64
	// LogicalAddr is a filesystem-internal virtual byte address,
	// meaningful only after translation through a ChunkMap.
	LogicalAddr int64
	// AddrDelta is a signed difference between two addresses of the
	// same kind.
	AddrDelta int64
)

func (a PhysicalAddr) String() string { return fmt.Sprintf("%#016x", int64(a)) }
func (a LogicalAddr) String() string  { return fmt.Sprintf("%#016x", int64(a)) }
func (d AddrDelta) String() string    { return fmt.Sprintf("%#016x", int64(d)) }

func (a PhysicalAddr) Sub(b PhysicalAddr) AddrDelta { return AddrDelta(a - b) }
func (a LogicalAddr) Sub(b LogicalAddr) AddrDelta   { return AddrDelta(a - b) }

func (a PhysicalAddr) Add(b AddrDelta) PhysicalAddr { return a + PhysicalAddr(b) }
func (a LogicalAddr) Add(b AddrDelta) LogicalAddr   { return a + LogicalAddr(b) }

// DeviceID identifies a member device of a (possibly multi-device) volume.
// Only single-device images are fully supported — RAID reconstruction
// beyond picking the first stripe is out of scope — but the type carries
// the full on-disk stripe list regardless.
type DeviceID uint64

// QualifiedPhysicalAddr is a physical address paired with the device it
// lives on.
type QualifiedPhysicalAddr struct {
	Dev  DeviceID
	Addr PhysicalAddr
}

func (a QualifiedPhysicalAddr) Add(b AddrDelta) QualifiedPhysicalAddr {
	return QualifiedPhysicalAddr{Dev: a.Dev, Addr: a.Addr.Add(b)}
}

func (a QualifiedPhysicalAddr) Compare(b QualifiedPhysicalAddr) int {
	if a.Dev != b.Dev {
		if a.Dev < b.Dev {
			return -1
		}
		return 1
	}
	switch {
	case a.Addr < b.Addr:
		return -1
	case a.Addr > b.Addr:
		return 1
	default:
		return 0
	}
}
