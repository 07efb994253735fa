// Copyright (C) 2022 Sneller, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <http://www.gnu.org/licenses/>.

//go:build linux
// +build linux

package pagealloc

import "golang.org/x/sys/unix"

// Alloc returns size bytes of zeroed, page-aligned memory mapped
// PROT_READ|PROT_WRITE, MAP_PRIVATE|MAP_ANONYMOUS. The returned slice's
// capacity extends to the page-rounded mapping length; Free recovers that
// full mapping from the capacity, so callers must not re-slice the
// capacity away before calling Free.
func Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	buf, err := unix.Mmap(-1, 0, alignedSize(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		panic("pagealloc: mmap: " + err.Error())
	}
	return buf[:size]
}

// Free unmaps a buffer returned by Alloc. The caller must not use buf
// afterward.
func Free(buf []byte) {
	if buf == nil {
		return
	}
	full := buf[:cap(buf)]
	if err := unix.Munmap(full); err != nil {
		panic("pagealloc: munmap: " + err.Error())
	}
}
