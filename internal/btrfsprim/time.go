// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"time"

	"github.com/coldtrace/btrfsimg/internal/binstruct"
)

// Time is the on-disk 12-byte timespec: a 64-bit seconds-since-epoch
// counter and a 32-bit nanosecond remainder.
type Time struct {
	Sec           int64  `bin:"off=0x0, siz=0x8"`
	NSec          uint32 `bin:"off=0x8, siz=0x4"`
	binstruct.End `bin:"off=0xc"`
}

// ToStd converts to a time.Time, falling back to the Unix epoch
// (1970-01-01) when Sec is outside the range a valid timestamp can occupy.
func (t Time) ToStd() time.Time {
	const maxReasonableSec = int64(1) << 40
	if t.Sec < 0 || t.Sec > maxReasonableSec {
		return time.Unix(0, 0).UTC()
	}
	return time.Unix(t.Sec, int64(t.NSec)).UTC()
}

func (t Time) String() string {
	return t.ToStd().Format(time.RFC3339Nano)
}
