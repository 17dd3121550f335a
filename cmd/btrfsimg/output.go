// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"io"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/coldtrace/btrfsimg/internal/fsimage"
)

// printer formats human-readable sizes/offsets for the partition listing.
var printer = message.NewPrinter(language.English)

// writeEntries emits entries as an indented JSON array. BuildEntries already
// sorts by path, and FileEntry's fields marshal in the same fixed
// declaration order every time, so two runs over the same image produce
// byte-identical output across repeated runs without a separate key-sorting
// pass.
func writeEntries(w io.Writer, entries []fsimage.FileEntry) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(entries)
}

func humanBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return printer.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for n/div >= unit {
		div *= unit
		exp++
	}
	return printer.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
