// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
	"github.com/coldtrace/btrfsimg/internal/partscan"
)

// newDetectCommand builds the `detect` subcommand: enumerate partitions,
// print the list to stderr, accept a numeric selection, and (after a
// "Proceed with parsing? [Y/n]" confirmation prompt) parse the selected one.
func newDetectCommand(wrap func(func(context.Context, *cobra.Command, []string) error) func(*cobra.Command, []string) error) *cobra.Command {
	var hash, resolveIdentities bool

	cmd := &cobra.Command{
		Use:   "detect IMAGE",
		Short: "Enumerate partitions in IMAGE and interactively parse one",
		Args:  cobra.ExactArgs(1),
	}
	cmd.Flags().BoolVar(&hash, "hash", false, "compute md5/sha256 for every file")
	cmd.Flags().BoolVar(&resolveIdentities, "resolve-identities", false, "resolve uid/gid to names via /etc/passwd, /etc/group")
	cmd.RunE = wrap(func(ctx context.Context, cmd *cobra.Command, args []string) error {
		return runDetect(ctx, args[0], hash, resolveIdentities)
	})
	return cmd
}

func runDetect(ctx context.Context, imagePath string, hash, resolveIdentities bool) error {
	parts, err := partscan.Detect(imagePath)
	if err != nil {
		return fmt.Errorf("btrfsimg: scanning partitions: %w", err)
	}
	if len(parts) == 0 {
		return fmt.Errorf("btrfsimg: no btrfs filesystem found in %q", imagePath)
	}

	for _, p := range parts {
		label := p.Label
		if label == "" {
			label = "(no label)"
		}
		fmt.Fprintf(os.Stderr, "[%d] %s partition at offset %s (size %s) label=%q\n",
			p.Index, p.Scheme, humanBytes(p.Offset), humanBytes(p.Size), label)
	}

	reader := bufio.NewReader(os.Stdin)
	selected := parts[0]
	if len(parts) > 1 {
		fmt.Fprint(os.Stderr, "Select partition index: ")
		line, _ := reader.ReadString('\n')
		idx, err := strconv.Atoi(strings.TrimSpace(line))
		if err != nil {
			return fmt.Errorf("btrfsimg: invalid selection: %w", err)
		}
		found := false
		for _, p := range parts {
			if p.Index == idx {
				selected = p
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("btrfsimg: no partition with index %d", idx)
		}
	}

	fmt.Fprint(os.Stderr, "Proceed with parsing? [Y/n] ")
	line, _ := reader.ReadString('\n')
	answer := strings.ToLower(strings.TrimSpace(line))
	if answer != "" && answer != "y" && answer != "yes" {
		fmt.Fprintln(os.Stderr, "aborted")
		return nil
	}

	return parseAndPrint(ctx, imagePath, btrfsvol.PhysicalAddr(selected.Offset), hash, resolveIdentities)
}
