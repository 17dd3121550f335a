// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

// RootRef is the ROOT_REF (and ROOT_BACKREF) payload, used to resolve a
// subvolume's display name.
type RootRef struct { // ROOT_REF=156 ROOT_BACKREF=144
	DirID         btrfsprim.ObjID `bin:"off=0x00, siz=0x8"`
	Sequence      int64           `bin:"off=0x08, siz=0x8"`
	NameLen       uint16          `bin:"off=0x10, siz=0x2"`
	binstruct.End `bin:"off=0x12"`
	Name          []byte `bin:"-"`
}

func (RootRef) isItem() {}

func (o *RootRef) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0x12); err != nil {
		return 0, err
	}
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if o.NameLen > maxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", maxNameLen, o.NameLen)
	}
	if err := binstruct.NeedNBytes(dat, 0x12+int(o.NameLen)); err != nil {
		return n, err
	}
	o.Name = append([]byte(nil), dat[n:n+int(o.NameLen)]...)
	n += int(o.NameLen)
	return n, nil
}

func (o RootRef) MarshalBinary() ([]byte, error) {
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	return append(dat, o.Name...), nil
}
