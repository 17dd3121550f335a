// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"

	"github.com/datawire/dlib/dlog"
	"github.com/spf13/cobra"

	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/fsimage"
)

// newParseCommand builds the `parse` subcommand: decode the image at a
// known (or default, bare-filesystem) offset and emit its file listing as
// JSON, without any interactive prompt.
func newParseCommand(wrap func(func(context.Context, *cobra.Command, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	var offset offsetFlag
	var hash, resolveIdentities bool

	cmd := &cobra.Command{
		Use:   "parse IMAGE",
		Short: "Decode IMAGE and emit its file listing as JSON",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().Var(&offset, "offset", "partition offset: decimal bytes, 0x-hex, or Ns sectors")
	cmd.Flags().BoolVar(&hash, "hash", false, "compute md5/sha256 for every file")
	cmd.Flags().BoolVar(&resolveIdentities, "resolve-identities", false, "resolve uid/gid to names via /etc/passwd, /etc/group")
	cmd.RunE = wrap(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return parseAndPrint(ctx, args[0], offset.Addr, hash, resolveIdentities)
	})
	return cmd
}

// parseAndPrint runs the decode pipeline and writes the resulting entries
// as JSON to stdout; it is shared by `parse` (explicit/default offset) and
// `detect` (offset chosen interactively).
func parseAndPrint(ctx context.Context, imagePath string, offset btrfsvol.PhysicalAddr, hash, resolveIdentities bool) error {
	img, err := openImage(imagePath, offset)
	if err != nil {
		return err
	}
	defer img.Close()

	dlog.Infof(ctx, "decoded filesystem %v (label %q, generation %v)",
		img.sb.FSUUID, img.sb.LabelString(), img.sb.Generation)
	for _, walkErr := range img.fs.Errors {
		dlog.Errorf(ctx, "recovered: %v", walkErr)
	}

	entries := img.fs.BuildEntries(img.dev.Chunks(), int64(img.sb.SectorSize))

	if resolveIdentities {
		identities := img.fs.ResolveIdentities(btrfsprim.ObjIDFSTree, img.dev.Chunks(), img.dev)
		for i := range entries {
			if name, ok := identities.Users[entries[i].UID]; ok {
				entries[i].UIDName = name
			}
			if name, ok := identities.Groups[entries[i].GID]; ok {
				entries[i].GIDName = name
			}
		}
	}

	if hash {
		for i := range entries {
			if entries[i].Type != "file" {
				continue
			}
			img.fs.HashFile(&entries[i], img.dev.Chunks(), img.dev)
		}
	}

	if err := writeEntries(os.Stdout, entries); err != nil {
		return fmt.Errorf("btrfsimg: writing output: %w", err)
	}

	summary := fsimage.Summarize(entries)
	fmt.Fprintf(os.Stderr, "%d entries, %d subvolumes, %s on disk\n",
		summary.TotalEntries, summary.Subvolumes, humanBytes(summary.TotalDiskBytes))
	return nil
}
