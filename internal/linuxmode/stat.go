// Copyright (C) 2022-2023  Luke Shumaker <lukeshu@lukeshu.com>
//
// SPDX-License-Identifier: GPL-2.0-or-later

// Package linuxmode renders the POSIX mode bits stored in an inode item
// into the conventional "drwxr-xr-x" form.
package linuxmode

// StatMode is the on-disk st_mode value: S_IFMT type bits plus permission
// bits, packed the same way Linux's struct stat stores them.
type StatMode uint32

const (
	ModeFmt StatMode = 0o17_0000 // mask for the type bits

	ModeFmtNamedPipe   StatMode = 0o01_0000
	ModeFmtCharDevice  StatMode = 0o02_0000
	ModeFmtDir         StatMode = 0o04_0000
	ModeFmtBlockDevice StatMode = 0o06_0000
	ModeFmtRegular     StatMode = 0o10_0000
	ModeFmtSymlink     StatMode = 0o12_0000
	ModeFmtSocket      StatMode = 0o14_0000

	ModePerm StatMode = 0o00_7777 // mask for permission bits

	ModePermSetUID StatMode = 0o00_4000
	ModePermSetGID StatMode = 0o00_2000
	ModePermSticky StatMode = 0o00_1000
)

// IsDir reports whether mode describes a directory.
func (mode StatMode) IsDir() bool {
	return mode&ModeFmt == ModeFmtDir
}

// IsRegular reports whether mode describes a regular file.
func (mode StatMode) IsRegular() bool {
	return mode&ModeFmt == ModeFmtRegular
}

// IsSymlink reports whether mode describes a symbolic link.
func (mode StatMode) IsSymlink() bool {
	return mode&ModeFmt == ModeFmtSymlink
}

// String renders mode the way POSIX specifies for `ls -l`: a type
// character followed by three rwx triples. POSIX leaves the socket
// character unspecified; this uses 's', matching GNU ls.
func (mode StatMode) String() string {
	buf := [10]byte{
		"?pc?d?b?-?l?s???"[mode>>12],

		"-r"[(mode>>8)&0o1],
		"-w"[(mode>>7)&0o1],
		"-xSs"[((mode>>6)&0o1)|((mode>>10)&0o2)],

		"-r"[(mode>>5)&0o1],
		"-w"[(mode>>4)&0o1],
		"-xSs"[((mode>>3)&0o1)|((mode>>9)&0o2)],

		"-r"[(mode>>2)&0o1],
		"-w"[(mode>>1)&0o1],
		"-xTt"[((mode>>0)&0o1)|((mode>>8)&0o2)],
	}
	return string(buf[:])
}
