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

package sampler

import (
	"unsafe"

	"github.com/rtbhouse-apps/nvmesampler/internal/ints"
)

// uintptrOf returns the address of buf's first byte, or 0 for an empty
// slice. Only used to compute alignment padding; the returned value is
// never dereferenced directly, only used to slice buf itself.
func uintptrOf(buf []byte) uintptr {
	if len(buf) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&buf[0]))
}

// newPageAlignedBuffer allocates a PageSize-aligned buffer of exactly
// size bytes. It is used for the per-worker AIO read buffer, which direct
// I/O requires to be aligned; it is independent of the public Allocator
// capability, which only governs the buffer the consumer reads finished
// batches out of.
func newPageAlignedBuffer(size int64) []byte {
	raw := make([]byte, size+PageSize)
	base := uintptrOf(raw)
	aligned := ints.AlignUp(base, uintptr(PageSize))
	off := int(aligned - base)
	return raw[off : off+int(size) : off+int(size)]
}
