// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package btrfsitem decodes the payload of a leaf item once its key.Kind is
// known, dispatching to one of a fixed set of per-kind Go types.
package btrfsitem

import (
	"fmt"
	"reflect"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

// Item is implemented by every decoded item payload type, including Error.
type Item interface {
	isItem()
}

// Error is returned by UnmarshalItem in place of a typed Item when the
// payload cannot be decoded — a TruncatedPayload or unrecognized-kind
// condition the caller is expected to count and skip rather than abort the
// tree walk over.
type Error struct {
	Dat []byte
	Err error
}

func (Error) isItem() {}

var keytype2gotype = map[btrfsprim.Kind]reflect.Type{
	btrfsprim.KindInodeItem:   reflect.TypeOf(Inode{}),
	btrfsprim.KindInodeRef:    reflect.TypeOf(InodeRef{}),
	btrfsprim.KindDirItem:     reflect.TypeOf(DirEntry{}),
	btrfsprim.KindDirIndex:    reflect.TypeOf(DirEntry{}),
	btrfsprim.KindXattrItem:   reflect.TypeOf(DirEntry{}),
	btrfsprim.KindExtentData:  reflect.TypeOf(FileExtent{}),
	btrfsprim.KindRootItem:    reflect.TypeOf(Root{}),
	btrfsprim.KindRootRef:     reflect.TypeOf(RootRef{}),
	btrfsprim.KindRootBackref: reflect.TypeOf(RootRef{}),
	btrfsprim.KindChunkItem:   reflect.TypeOf(Chunk{}),
	btrfsprim.KindExtentCSum:  reflect.TypeOf(ExtentCSum{}),
	btrfsprim.KindDevItem:     reflect.TypeOf(Dev{}),
}

// UnmarshalItem decodes dat as the payload belonging to key, dispatching on
// key.Kind. Rather than a separate error return, an unrecognized kind or a
// decode failure is reported as an Error item, so callers that want
// best-effort recovery never need a second error path.
func UnmarshalItem(key btrfsprim.Key, csumSize int, dat []byte) Item {
	gotyp, ok := keytype2gotype[key.Kind]
	if !ok {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem: unrecognized item kind %v", key.Kind),
		}
	}
	retPtr := reflect.New(gotyp)
	if csum, ok := retPtr.Interface().(*ExtentCSum); ok {
		csum.ChecksumSize = csumSize
		csum.LogicalStart = btrfsprim.ObjID(key.Offset)
	}
	n, err := binstruct.Unmarshal(dat, retPtr.Interface())
	if err != nil {
		return Error{Dat: dat, Err: fmt.Errorf("btrfsitem.UnmarshalItem(kind=%v): %w", key.Kind, err)}
	}
	if n < len(dat) {
		return Error{
			Dat: dat,
			Err: fmt.Errorf("btrfsitem.UnmarshalItem(kind=%v): left over data: got %v bytes but only consumed %v",
				key.Kind, len(dat), n),
		}
	}
	return retPtr.Elem().Interface().(Item)
}

// bitfieldString renders a flag bitmask as a comma-joined list of the names
// for set bits, with any unrecognized remaining bits appended in hex —
// the shape every *Flags.String() method in this package shares.
func bitfieldString(flags uint64, names []string) string {
	var out []byte
	for i, name := range names {
		bit := uint64(1) << uint(i)
		if flags&bit == 0 {
			continue
		}
		if len(out) > 0 {
			out = append(out, '|')
		}
		out = append(out, name...)
		flags &^= bit
	}
	if flags != 0 {
		if len(out) > 0 {
			out = append(out, '|')
		}
		out = append(out, []byte(fmt.Sprintf("%#x", flags))...)
	}
	if len(out) == 0 {
		return "0"
	}
	return string(out)
}
