// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

const sectorSize = 512

// offsetFlag parses a partition offset in one of three forms: bare decimal
// bytes, 0x-prefixed hex, or an `s`-suffixed sector count (multiples of 512
// bytes) — the same pflag.Value idiom logLevelFlag uses in main.go.
type offsetFlag struct {
	Addr btrfsvol.PhysicalAddr
	set  bool
}

var _ pflag.Value = (*offsetFlag)(nil)

func (f *offsetFlag) Type() string { return "offset" }

func (f *offsetFlag) String() string {
	if !f.set {
		return ""
	}
	return strconv.FormatInt(int64(f.Addr), 10)
}

func (f *offsetFlag) Set(str string) error {
	switch {
	case strings.HasPrefix(str, "0x") || strings.HasPrefix(str, "0X"):
		v, err := strconv.ParseUint(str[2:], 16, 64)
		if err != nil {
			return fmt.Errorf("invalid hex offset %q: %w", str, err)
		}
		f.Addr = btrfsvol.PhysicalAddr(v)

	case strings.HasSuffix(str, "s") || strings.HasSuffix(str, "S"):
		v, err := strconv.ParseUint(str[:len(str)-1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid sector offset %q: %w", str, err)
		}
		f.Addr = btrfsvol.PhysicalAddr(v * sectorSize)

	default:
		v, err := strconv.ParseUint(str, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid decimal offset %q: %w", str, err)
		}
		f.Addr = btrfsvol.PhysicalAddr(v)
	}
	f.set = true
	return nil
}
