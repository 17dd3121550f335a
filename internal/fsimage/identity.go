// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

package fsimage

import (
	"bufio"
	"bytes"
	"strconv"
	"strings"

	"github.com/coldtrace/btrfsimg/internal/btrfsprim"
	"github.com/coldtrace/btrfsimg/internal/btrfsvol"
)

// IdentityTable maps a numeric uid or gid to the name /etc/passwd or
// /etc/group assigns it, resolved by locating and reading those files
// (also tried under /root/etc/...) through the decoded filesystem.
type IdentityTable struct {
	Users  map[int32]string
	Groups map[int32]string
}

// parseColonFile parses the standard colon-separated passwd/group line
// format, taking the first field as the name and idField as the numeric id
// column (3rd field, index 2, for both formats).
func parseColonFile(data []byte, idField int) map[int32]string {
	out := make(map[int32]string)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Split(line, ":")
		if len(fields) <= idField {
			continue
		}
		id, err := strconv.ParseInt(fields[idField], 10, 32)
		if err != nil {
			continue
		}
		out[int32(id)] = fields[0]
	}
	return out
}

// ParsePasswd parses /etc/passwd content: name:passwd:uid:gid:gecos:home:shell.
func ParsePasswd(data []byte) map[int32]string { return parseColonFile(data, 2) }

// ParseGroup parses /etc/group content: name:passwd:gid:members.
func ParseGroup(data []byte) map[int32]string { return parseColonFile(data, 2) }

// identityFileCandidates are the paths, in priority order, this reader
// checks for each identity file — both at the filesystem root and under
// /root.
var identityFileCandidates = map[string][]string{
	"passwd": {"/etc/passwd", "/root/etc/passwd"},
	"group":  {"/etc/group", "/root/etc/group"},
}

// FindInode resolves a slash-separated absolute path (e.g. "/etc/passwd")
// to the UniqInode it names within subvolID, by walking DirEntries from
// that subvolume's root directory. Returns false if any path component is
// missing.
func (fs *FileSystem) FindInode(subvolID btrfsprim.ObjID, path string) (UniqInode, bool) {
	cur := NewUniqInode(subvolID, subvolumeRootInode)
	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}
		entries, ok := fs.DirEntries[cur]
		if !ok {
			return UniqInode(0), false
		}
		found := false
		for _, e := range entries {
			if e.Name == part {
				cur = NewUniqInode(subvolID, e.Location.ObjectID)
				found = true
				break
			}
		}
		if !found {
			return UniqInode(0), false
		}
	}
	return cur, true
}

// ResolveIdentities locates /etc/passwd and /etc/group (or their /root/…
// counterparts) within subvolID and parses them into an IdentityTable. A
// missing file simply leaves that half of the table empty — identity
// resolution is best-effort, never fatal.
func (fs *FileSystem) ResolveIdentities(subvolID btrfsprim.ObjID, chunks *btrfsvol.ChunkMap, image PhysicalReader) *IdentityTable {
	table := &IdentityTable{Users: map[int32]string{}, Groups: map[int32]string{}}

	if data, ok := fs.readFileByAnyPath(subvolID, identityFileCandidates["passwd"], chunks, image); ok {
		table.Users = ParsePasswd(data)
	}
	if data, ok := fs.readFileByAnyPath(subvolID, identityFileCandidates["group"], chunks, image); ok {
		table.Groups = ParseGroup(data)
	}
	return table
}

func (fs *FileSystem) readFileByAnyPath(subvolID btrfsprim.ObjID, candidates []string, chunks *btrfsvol.ChunkMap, image PhysicalReader) ([]byte, bool) {
	for _, path := range candidates {
		uniq, ok := fs.FindInode(subvolID, path)
		if !ok {
			continue
		}
		inode, ok := fs.Inodes[uniq]
		if !ok {
			continue
		}
		return ReadFileExtents(fs.Extents[uniq], chunks, image, inode.Size, 0), true
	}
	return nil, false
}
