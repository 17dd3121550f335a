// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package btrfsprim

import (
	"fmt"

	"github.com/google/uuid"
)

// UUID is the on-disk 16-byte representation of a filesystem or device
// identifier. The byte layout matches the struct field it was read from
// directly; it is not re-ordered to match RFC 4122's mixed-endian fields.
type UUID [16]byte

func (a UUID) String() string {
	return uuid.UUID(a).String()
}

func (a UUID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

func (a *UUID) UnmarshalText(text []byte) error {
	parsed, err := ParseUUID(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// ParseUUID parses the canonical "xxxxxxxx-xxxx-xxxx-xxxx-xxxxxxxxxxxx" form.
func ParseUUID(str string) (UUID, error) {
	parsed, err := uuid.Parse(str)
	if err != nil {
		return UUID{}, fmt.Errorf("btrfsprim.ParseUUID: %w", err)
	}
	return UUID(parsed), nil
}
