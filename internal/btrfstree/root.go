// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfstree

import (
	"fmt"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// FindRoot walks the root tree looking for the ROOT_ITEM naming treeID, and
// returns the logical address of that tree's own root node (the bytenr
// field at payload offset 176).
func FindRoot(w *Walker, rootTreeAddr btrfsvol.LogicalAddr, treeID btrfsprim.ObjID) (btrfsvol.LogicalAddr, error) {
	var found *btrfsitem.Root
	err := w.Walk(rootTreeAddr, func(item Item) error {
		if found != nil {
			return nil
		}
		if item.Key.ObjectID != treeID || item.Key.Kind != btrfsprim.KindRootItem {
			return nil
		}
		root, ok := item.Body.(btrfsitem.Root)
		if !ok {
			return nil
		}
		found = &root
		return nil
	})
	if err != nil {
		return 0, err
	}
	if found == nil {
		return 0, fmt.Errorf("btrfstree: no ROOT_ITEM found for tree %v", treeID)
	}
	return found.ByteNr, nil
}
