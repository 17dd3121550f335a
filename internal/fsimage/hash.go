// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

import (
	"crypto/md5"
	"crypto/sha256"
	"encoding/hex"

	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// HashFile computes the MD5 and SHA-256 of one already-decoded entry's file
// content. Hashing every file would couple metadata scanning to full-file
// reads, so it's kept as a dedicated post-pass a caller opts into per file,
// after BuildEntries has already produced the metadata-only record.
func (fs *FileSystem) HashFile(entry *FileEntry, chunks *btrfsvol.ChunkMap, image PhysicalReader) {
	content := ReadFileExtents(fs.Extents[entry.Inode], chunks, image, entry.Size, 0)

	md5sum := md5.Sum(content)
	entry.MD5 = hex.EncodeToString(md5sum[:])

	sha := sha256.Sum256(content)
	entry.SHA256 = hex.EncodeToString(sha[:])
}
