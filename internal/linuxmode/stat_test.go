// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package linuxmode_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldtrace/btrfsimg/internal/linuxmode"
)

func TestModeString(t *testing.T) {
	assert.Equal(t, "drwxr-xr-x", linuxmode.StatMode(0o040755).String())
	assert.Equal(t, "-rw-r--r--", linuxmode.StatMode(0o100644).String())
	assert.True(t, linuxmode.StatMode(0o040755).IsDir())
	assert.True(t, linuxmode.StatMode(0o100644).IsRegular())
	assert.False(t, linuxmode.StatMode(0o100644).IsDir())
}
