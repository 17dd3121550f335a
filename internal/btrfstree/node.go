// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfstree decodes B-tree node blocks (header, leaf items, and
// internal key-pointers) and walks a tree given its logical root address.
package btrfstree

import (
	"encoding/binary"
	"fmt"
	"hash/crc32"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// NodeFlags is the 56-bit (7-byte) flags field embedded in a tree-block
// header.
type NodeFlags uint64

func (NodeFlags) BinaryStaticSize() int { return 7 }
func (f NodeFlags) MarshalBinary() ([]byte, error) {
	var bs [8]byte
	binary.LittleEndian.PutUint64(bs[:], uint64(f))
	return bs[:7], nil
}
func (f *NodeFlags) UnmarshalBinary(dat []byte) (int, error) {
	var bs [8]byte
	copy(bs[:7], dat[:7])
	*f = NodeFlags(binary.LittleEndian.Uint64(bs[:]))
	return 7, nil
}

const (
	NodeWritten NodeFlags = 1 << iota
	NodeReloc
)

// NodeHeader is the 101-byte tree-block header present at the start of
// every node, leaf or internal.
type NodeHeader struct {
	Checksum      [32]byte             `bin:"off=0x0,  siz=0x20"`
	MetadataUUID  btrfsprim.UUID       `bin:"off=0x20, siz=0x10"`
	Addr          btrfsvol.LogicalAddr `bin:"off=0x30, siz=0x8"`
	Flags         NodeFlags            `bin:"off=0x38, siz=0x7"`
	BackrefRev    uint8                `bin:"off=0x3f, siz=0x1"`
	ChunkTreeUUID btrfsprim.UUID       `bin:"off=0x40, siz=0x10"`
	Generation    btrfsprim.Generation `bin:"off=0x50, siz=0x8"`
	Owner         btrfsprim.ObjID      `bin:"off=0x58, siz=0x8"`
	NumItems      uint32               `bin:"off=0x60, siz=0x4"`
	Level         uint8                `bin:"off=0x64, siz=0x1"`
	binstruct.End `bin:"off=0x65"`
}

// KeyPointer is one 33-byte internal-node entry.
type KeyPointer struct {
	Key           btrfsprim.Key        `bin:"off=0x0,  siz=0x11"`
	BlockPtr      btrfsvol.LogicalAddr `bin:"off=0x11, siz=0x8"`
	Generation    btrfsprim.Generation `bin:"off=0x19, siz=0x8"`
	binstruct.End `bin:"off=0x21"`
}

// itemHeader is the fixed 25-byte leaf item descriptor.
type itemHeader struct {
	Key           btrfsprim.Key `bin:"off=0x0,  siz=0x11"`
	DataOffset    uint32        `bin:"off=0x11, siz=0x4"`
	DataSize      uint32        `bin:"off=0x15, siz=0x4"`
	binstruct.End `bin:"off=0x19"`
}

// Item is a single leaf (key, decoded payload) pair.
type Item struct {
	Key  btrfsprim.Key
	Body btrfsitem.Item
}

// Node is a fully decoded tree block: the header plus either its internal
// key-pointer array or its leaf item array, depending on Head.Level.
type Node struct {
	Size     uint32
	Head     NodeHeader
	Internal []KeyPointer
	Leaf     []Item
}

// IsLeaf reports whether this node is a leaf (level 0).
func (node Node) IsLeaf() bool { return node.Head.Level == 0 }

// Reset clears node for reuse from a pool: same allocation, zero-length
// slices that keep their backing arrays, so the next DecodeNodeInto reuses
// the capacity instead of allocating fresh Internal/Leaf slices.
func (node *Node) Reset() {
	node.Size = 0
	node.Head = NodeHeader{}
	node.Internal = node.Internal[:0]
	node.Leaf = node.Leaf[:0]
}

// ValidateChecksum recomputes the CRC32C over everything after the
// checksum field and compares it to the stored value, catching wire
// corruption that an address mismatch alone wouldn't.
func (node Node) ValidateChecksum(raw []byte) error {
	if len(raw) < 32 {
		return fmt.Errorf("btrfstree: node block too short to contain a checksum")
	}
	calc := crc32.Checksum(raw[32:], castagnoli)
	var stored [4]byte
	copy(stored[:], node.Head.Checksum[:4])
	if binary.LittleEndian.Uint32(stored[:]) != calc {
		return fmt.Errorf("btrfstree: node checksum mismatch at %v", node.Head.Addr)
	}
	return nil
}

// DecodeNode parses a raw node-size block read from the address the caller
// expected it at. A mismatch between the header's embedded address and the
// address the block was fetched from signals corruption; the caller
// decides whether that's fatal or skip-worthy.
func DecodeNode(raw []byte, expectAddr btrfsvol.LogicalAddr) (*Node, error) {
	node := &Node{}
	if err := DecodeNodeInto(node, raw, expectAddr); err != nil {
		return node, err
	}
	return node, nil
}

// DecodeNodeInto decodes raw into node, which may be a freshly zeroed value
// or one just taken from a pool (see internal/diskio, which pools *Node to
// avoid an allocation on every node read) and Reset by the caller.
func DecodeNodeInto(node *Node, raw []byte, expectAddr btrfsvol.LogicalAddr) error {
	headSize := binstruct.StaticSize(NodeHeader{})
	if len(raw) <= headSize {
		return fmt.Errorf("btrfstree: node block of %d bytes too short for a %d-byte header", len(raw), headSize)
	}

	node.Size = uint32(len(raw))
	n, err := binstruct.Unmarshal(raw, &node.Head)
	if err != nil {
		return fmt.Errorf("btrfstree: decoding header: %w", err)
	}
	if n != headSize {
		return fmt.Errorf("btrfstree: header consumed %d bytes but expected %d", n, headSize)
	}
	if node.Head.Addr != expectAddr {
		return fmt.Errorf("btrfstree: node read from %v but header claims address %v", expectAddr, node.Head.Addr)
	}

	body := raw[n:]
	if node.Head.Level > 0 {
		if err := node.unmarshalInternal(body); err != nil {
			return fmt.Errorf("btrfstree: internal node: %w", err)
		}
	} else {
		if err := node.unmarshalLeaf(body); err != nil {
			return fmt.Errorf("btrfstree: leaf node: %w", err)
		}
	}
	return nil
}

func (node *Node) unmarshalInternal(body []byte) error {
	n := 0
	for i := uint32(0); i < node.Head.NumItems; i++ {
		var kp KeyPointer
		_n, err := binstruct.Unmarshal(body[n:], &kp)
		n += _n
		if err != nil {
			return fmt.Errorf("key pointer %d: %w", i, err)
		}
		node.Internal = append(node.Internal, kp)
	}
	return nil
}

func (node *Node) unmarshalLeaf(body []byte) error {
	head := 0
	tail := len(body)
	for i := uint32(0); i < node.Head.NumItems; i++ {
		var ih itemHeader
		n, err := binstruct.Unmarshal(body[head:], &ih)
		head += n
		if err != nil {
			return fmt.Errorf("item %d header: %w", i, err)
		}
		if head > tail {
			return fmt.Errorf("item %d: descriptor end %#x runs into payload section (tail=%#x)", i, head, tail)
		}
		dataOff := int(ih.DataOffset)
		dataSize := int(ih.DataSize)
		if dataOff < head || dataOff+dataSize > len(body) {
			return fmt.Errorf("item %d: payload slice [%#x,%#x) outside block", i, dataOff, dataOff+dataSize)
		}
		payload := body[dataOff : dataOff+dataSize]
		node.Leaf = append(node.Leaf, Item{
			Key:  ih.Key,
			Body: btrfsitem.UnmarshalItem(ih.Key, btrfsitem.CSumSize, payload),
		})
		if dataOff < tail {
			tail = dataOff
		}
	}
	return nil
}
