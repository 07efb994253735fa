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

//go:build !linux
// +build !linux

package pagealloc

// Alloc falls back to a plain heap allocation on platforms without mmap
// support; it is still page-rounded for alignment parity with the Linux
// backend, but offers none of mmap's bypass-the-GC benefits.
func Alloc(size int) []byte {
	if size <= 0 {
		return nil
	}
	return make([]byte, alignedSize(size))[:size]
}

// Free is a no-op on this backend: buf is ordinary Go-heap memory and the
// garbage collector reclaims it once unreferenced.
func Free(buf []byte) {}
