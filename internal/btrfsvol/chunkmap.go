// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsvol

import "sync"

// Mapping is a single logical-range-to-physical-stripe entry, stored as an
// element of ChunkMap's plain mapping slice.
type Mapping struct {
	LogicalAddr LogicalAddr
	PhysicalAddr
	Length AddrDelta

	// SizeLocked marks a mapping that a later mapping at the same logical
	// start without SizeLocked does not replace (see AddMapping). Seeds
	// from the system-chunk array carry it, and so does every mapping
	// Chunk.Mapping returns, so a chunk-tree mapping does replace a seed.
	SizeLocked bool
}

func (m Mapping) logicalEnd() LogicalAddr {
	return m.LogicalAddr.Add(m.Length)
}

func (m Mapping) contains(laddr LogicalAddr) bool {
	return laddr >= m.LogicalAddr && laddr < m.logicalEnd()
}

// ChunkMapState tracks a ChunkMap's three lifecycle states: a lookup is
// only trustworthy once the map is Complete.
type ChunkMapState int

const (
	ChunkMapEmpty ChunkMapState = iota
	ChunkMapSeeded
	ChunkMapComplete
)

// ChunkMap is the logical-to-physical address translator (component C3). It
// stores disjoint logical ranges in an unsorted slice, searched linearly on
// lookup: chunk counts in even a large image are in the thousands, not
// enough to justify an interval-tree or binary-search structure.
type ChunkMap struct {
	mu              sync.RWMutex
	partitionOffset PhysicalAddr
	mappings        []Mapping
	state           ChunkMapState
}

// NewChunkMap constructs an empty map for a filesystem whose containing
// partition begins at partitionOffset within the image file.
func NewChunkMap(partitionOffset PhysicalAddr) *ChunkMap {
	return &ChunkMap{partitionOffset: partitionOffset}
}

func (m *ChunkMap) State() ChunkMapState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// AddMapping records (or overwrites) one logical-range-to-physical mapping.
// Duplicate mappings (same logical start) are overwritten by the latest
// write — later calls win, matching B-tree semantics where a later
// generation supersedes an earlier one at the same key.
func (m *ChunkMap) AddMapping(mapping Mapping) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, existing := range m.mappings {
		if existing.LogicalAddr == mapping.LogicalAddr {
			if existing.SizeLocked && !mapping.SizeLocked {
				// An unlocked mapping never replaces a
				// locked one.
				return
			}
			m.mappings[i] = mapping
			return
		}
	}
	m.mappings = append(m.mappings, mapping)
}

// MarkSeeded transitions Empty → Seeded after the system-chunk array has
// been consumed.
func (m *ChunkMap) MarkSeeded() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == ChunkMapEmpty {
		m.state = ChunkMapSeeded
	}
}

// MarkComplete transitions to Complete after the chunk tree has been fully
// walked. Only a Complete map is safe for filesystem-tree walks.
func (m *ChunkMap) MarkComplete() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = ChunkMapComplete
}

// Lookup translates a logical address to a physical one. It returns false
// unless exactly one mapping contains the address.
func (m *ChunkMap) Lookup(laddr LogicalAddr) (PhysicalAddr, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var found PhysicalAddr
	matches := 0
	for _, mapping := range m.mappings {
		if mapping.contains(laddr) {
			delta := laddr.Sub(mapping.LogicalAddr)
			found = m.partitionOffset + mapping.PhysicalAddr.Add(delta)
			matches++
		}
	}
	if matches != 1 {
		return 0, false
	}
	return found, true
}

// LookupQualified is like Lookup but also returns the owning device,
// defaulting to device 0 for the embedded-stripe case this reader supports
// — RAID reconstruction beyond the first stripe is out of scope.
func (m *ChunkMap) LookupQualified(laddr LogicalAddr) (QualifiedPhysicalAddr, bool) {
	paddr, ok := m.Lookup(laddr)
	if !ok {
		return QualifiedPhysicalAddr{}, false
	}
	return QualifiedPhysicalAddr{Dev: 0, Addr: paddr}, true
}

// Len reports how many mappings have been recorded, for diagnostics and
// tests.
func (m *ChunkMap) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.mappings)
}
