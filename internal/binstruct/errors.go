// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package binstruct decodes the fixed-layout, little-endian on-disk structs
// that make up a filesystem image, using `bin:"off=..,siz=.."` struct tags
// to both drive the decode and cross-check the layout a struct declares
// against the layout its fields actually occupy.
package binstruct

import (
	"fmt"
	"reflect"
)

// InvalidTypeError reports a Go type that cannot be handled by binstruct —
// typically a struct field tagged incorrectly, or a Go kind with no
// fixed-width binary representation.
type InvalidTypeError struct {
	Type reflect.Type
	Err  error
}

func (e *InvalidTypeError) Error() string {
	return fmt.Sprintf("%v: %v", e.Type, e.Err)
}
func (e *InvalidTypeError) Unwrap() error { return e.Err }

// UnmarshalError wraps a failure from a type's own UnmarshalBinary or
// MarshalBinary method; Method names which one.
type UnmarshalError struct {
	Type   reflect.Type
	Method string
	Err    error
}

func (e *UnmarshalError) Error() string {
	if e.Method == "" {
		return fmt.Sprintf("%v: %v", e.Type, e.Err)
	}
	return fmt.Sprintf("(%v).%v: %v", e.Type, e.Method, e.Err)
}
func (e *UnmarshalError) Unwrap() error { return e.Err }

// NeedNBytes returns an error if dat is shorter than n bytes — the shape of
// a TruncatedPayload failure at the struct-decode layer.
func NeedNBytes(dat []byte, n int) error {
	if len(dat) < n {
		return fmt.Errorf("need at least %d bytes, only have %d", n, len(dat))
	}
	return nil
}
