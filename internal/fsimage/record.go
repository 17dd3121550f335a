// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

import (
	"sort"
	"time"

	"github.com/coldtrace/btrfsimg/internal/btrfsitem"
	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// FileEntry is one emitted record: the per-file metadata fields, plus the
// optional hash/identity fields this package can fill in when asked.
type FileEntry struct {
	Inode          UniqInode            `json:"inode"`
	Name           string               `json:"name"`
	Path           string               `json:"path"`
	Size           int64                `json:"size"`
	Type           string               `json:"type"`
	Mode           uint32               `json:"mode"`
	ModeStr        string               `json:"mode_str"`
	UID            int32                `json:"uid"`
	GID            int32                `json:"gid"`
	NLink          int32                `json:"nlink"`
	ATime          time.Time            `json:"atime"`
	MTime          time.Time            `json:"mtime"`
	CTime          time.Time            `json:"ctime"`
	OTime          time.Time            `json:"otime"`
	ParentInode    UniqInode            `json:"parent_inode"`
	SubvolumeID    btrfsprim.ObjID      `json:"subvolume_id"`
	Generation     btrfsprim.Generation `json:"generation"`
	TransID        int64                `json:"transid"`
	Flags          uint64               `json:"flags"`
	FlagsStr       string               `json:"flags_str"`
	XattrCount     int                  `json:"xattr_count"`
	ExtentCount    int                  `json:"extent_count"`
	DiskBytes      int64                `json:"disk_bytes"`
	PhysicalOffset int64                `json:"physical_offset"`
	ChecksumCount  int                  `json:"checksum_count"`

	// Optional, filled by a post-pass (HashFile / ResolveIdentities).
	MD5     string `json:"md5,omitempty"`
	SHA256  string `json:"sha256,omitempty"`
	UIDName string `json:"uid_name,omitempty"`
	GIDName string `json:"gid_name,omitempty"`
}

// fileTypeLabel renders the record's "type" field from the inode's own
// S_IFMT mode bits: "directory", "file", "symlink", or "other". The
// directory-entry type is not consulted.
func fileTypeLabel(inode btrfsitem.Inode) string {
	switch {
	case inode.Mode.IsDir():
		return "directory"
	case inode.Mode.IsRegular():
		return "file"
	case inode.Mode.IsSymlink():
		return "symlink"
	default:
		return "other"
	}
}

// BuildEntries converts every known inode in fs into a sorted FileEntry
// list. Entries are sorted by path for deterministic output.
func (fs *FileSystem) BuildEntries(chunks *btrfsvol.ChunkMap, sectorSize int64) []FileEntry {
	var entries []FileEntry
	for uniq, inode := range fs.Inodes {
		entry := FileEntry{
			Inode:       uniq,
			Path:        fs.BuildPath(uniq),
			Size:        inode.Size,
			Type:        fileTypeLabel(inode),
			Mode:        uint32(inode.Mode),
			ModeStr:     inode.Mode.String(),
			UID:         inode.UID,
			GID:         inode.GID,
			NLink:       inode.NLink,
			ATime:       inode.ATime.ToStd(),
			MTime:       inode.MTime.ToStd(),
			CTime:       inode.CTime.ToStd(),
			OTime:       inode.OTime.ToStd(),
			SubvolumeID: uniq.SubvolID(),
			Generation:  inode.Generation,
			TransID:     inode.TransID,
			Flags:       uint64(inode.Flags),
			FlagsStr:    inode.Flags.FlagsString(),
			XattrCount:  len(fs.Xattrs[uniq]),
			ExtentCount: len(fs.Extents[uniq]),
		}
		if name, ok := fs.Names[uniq]; ok {
			entry.Name = name
		}
		if parent, ok := fs.ParentOf[uniq]; ok {
			entry.ParentInode = parent
		}

		var diskBytes int64
		var firstPhysical int64
		haveFirst := false
		for _, fe := range fs.Extents[uniq] {
			if fe.Extent.Type != btrfsitem.FileExtentReg && fe.Extent.Type != btrfsitem.FileExtentPrealloc {
				continue
			}
			if fe.Extent.IsHole() {
				continue
			}
			diskBytes += int64(fe.Extent.BodyExtent.DiskNumBytes)
			if !haveFirst {
				if paddr, ok := chunks.Lookup(fe.Extent.BodyExtent.DiskByteNr); ok {
					firstPhysical = int64(paddr)
					haveFirst = true
				}
			}
		}
		entry.DiskBytes = diskBytes
		entry.PhysicalOffset = firstPhysical
		entry.ChecksumCount = ChecksumCount(fs.Extents[uniq], fs.Checksums, sectorSize)

		entries = append(entries, entry)
	}

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Path != entries[j].Path {
			return entries[i].Path < entries[j].Path
		}
		return entries[i].Inode < entries[j].Inode
	})
	return entries
}
