// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
)

const maxNameLen = 255

// InodeRef is the INODE_REF payload: key.ObjectID is the child inode,
// key.Offset is the parent inode.
type InodeRef struct { // INODE_REF=12
	Index         int64  `bin:"off=0x0, siz=0x8"`
	NameLen       uint16 `bin:"off=0x8, siz=0x2"`
	binstruct.End `bin:"off=0xa"`
	Name          []byte `bin:"-"`
}

func (InodeRef) isItem() {}

func (o *InodeRef) UnmarshalBinary(dat []byte) (int, error) {
	if err := binstruct.NeedNBytes(dat, 0xa); err != nil {
		return 0, err
	}
	n, err := binstruct.UnmarshalWithoutInterface(dat, o)
	if err != nil {
		return n, err
	}
	if o.NameLen > maxNameLen {
		return 0, fmt.Errorf("maximum name len is %v, but .NameLen=%v", maxNameLen, o.NameLen)
	}
	if err := binstruct.NeedNBytes(dat, 0xa+int(o.NameLen)); err != nil {
		return n, err
	}
	o.Name = append([]byte(nil), dat[n:n+int(o.NameLen)]...)
	n += int(o.NameLen)
	return n, nil
}

func (o InodeRef) MarshalBinary() ([]byte, error) {
	o.NameLen = uint16(len(o.Name))
	dat, err := binstruct.MarshalWithoutInterface(o)
	if err != nil {
		return dat, err
	}
	return append(dat, o.Name...), nil
}
