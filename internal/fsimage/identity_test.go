// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/coldtrace/btrfsimg/internal/fsimage"
)

func TestParsePasswd(t *testing.T) {
	data := []byte("root:x:0:0:root:/root:/bin/bash\n" +
		"# a comment\n\n" +
		"nobody:x:65534:65534:nobody:/:/usr/sbin/nologin\n")
	users := fsimage.ParsePasswd(data)
	assert.Equal(t, "root", users[0])
	assert.Equal(t, "nobody", users[65534])
	assert.Len(t, users, 2)
}

func TestParseGroup(t *testing.T) {
	data := []byte("root:x:0:\nwheel:x:10:alice,bob\n")
	groups := fsimage.ParseGroup(data)
	assert.Equal(t, "root", groups[0])
	assert.Equal(t, "wheel", groups[10])
}

func TestParseColonFileSkipsMalformedLines(t *testing.T) {
	data := []byte("incomplete:x\nvalid:x:5:5:desc:/home/valid:/bin/sh\n")
	users := fsimage.ParsePasswd(data)
	assert.Len(t, users, 1)
	assert.Equal(t, "valid", users[5])
}
