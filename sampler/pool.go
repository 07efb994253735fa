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
	"github.com/rtbhouse-apps/nvmesampler/internal/ints"
)

// Allocator is the capability callers inject so the sampler never has to
// assume anything about where its output buffer lives (a PyTorch tensor's
// backing storage, a pinned CUDA-host buffer, a plain heap slice, ...).
// Both functions are invoked exactly once: Alloc on construction, Free on
// Coordinator.Close.
type Allocator struct {
	Alloc func(size int) []byte
	Free  func(buf []byte)
}

// bufferPool owns the single backing region shared by the two batch
// blocks and hands out two PageSize-aligned, block-sized slices from it.
type bufferPool struct {
	allocator Allocator
	backing   []byte
	blocks    [NumBatchBlocks][]byte
}

// newBufferPool allocates 2*blockSizeBytes+PageSize bytes through the
// given allocator and carves out two PageSize-aligned, blockSizeBytes-long
// regions spaced exactly one block apart.
func newBufferPool(blockSizeBytes int64, allocator Allocator) *bufferPool {
	backing := allocator.Alloc(int(2*blockSizeBytes + PageSize))

	base := uintptrOf(backing)
	aligned := ints.AlignUp(base, uintptr(PageSize))
	off0 := int(aligned - base)

	p := &bufferPool{allocator: allocator, backing: backing}
	p.blocks[0] = backing[off0 : off0+int(blockSizeBytes) : off0+int(blockSizeBytes)]
	p.blocks[1] = backing[off0+int(blockSizeBytes) : off0+2*int(blockSizeBytes) : off0+2*int(blockSizeBytes)]
	return p
}

func (p *bufferPool) close() {
	p.allocator.Free(p.backing)
}
