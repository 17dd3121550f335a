// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsitem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
)

func TestInodeRefRoundTrip(t *testing.T) {
	ref := btrfsitem.InodeRef{Index: 2, Name: []byte("hello.txt")}
	dat, err := binstruct.Marshal(ref)
	require.NoError(t, err)

	var got btrfsitem.InodeRef
	n, err := binstruct.Unmarshal(dat, &got)
	require.NoError(t, err)
	assert.Equal(t, len(dat), n)
	assert.Equal(t, ref.Index, got.Index)
	assert.Equal(t, ref.Name, got.Name)
}

func TestDirEntryRoundTrip(t *testing.T) {
	entry := btrfsitem.DirEntry{
		Location: btrfsprim.Key{ObjectID: 257, Kind: btrfsprim.KindInodeItem},
		Type:     btrfsitem.FTRegFile,
		Name:     []byte("a.txt"),
	}
	dat, err := binstruct.Marshal(entry)
	require.NoError(t, err)

	var got btrfsitem.DirEntry
	_, err = binstruct.Unmarshal(dat, &got)
	require.NoError(t, err)
	assert.Equal(t, entry.Name, got.Name)
	assert.Equal(t, entry.Type, got.Type)
	assert.Equal(t, "file", got.Type.String())
}

func TestUnmarshalItemUnknownKind(t *testing.T) {
	key := btrfsprim.Key{ObjectID: 1, Kind: btrfsprim.Kind(250), Offset: 0}
	item := btrfsitem.UnmarshalItem(key, btrfsitem.CSumSize, []byte{1, 2, 3})
	errItem, ok := item.(btrfsitem.Error)
	require.True(t, ok)
	assert.Error(t, errItem.Err)
}

func TestFileExtentInlineSize(t *testing.T) {
	fe := btrfsitem.FileExtent{
		Type:       btrfsitem.FileExtentInline,
		BodyInline: []byte("hello"),
	}
	sz, err := fe.Size()
	require.NoError(t, err)
	assert.Equal(t, int64(5), sz)
	assert.False(t, fe.IsHole())
}
