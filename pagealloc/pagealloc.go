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

// Package pagealloc provides a ready-made sampler.Allocator pair for
// callers that don't already own a buffer arena: Alloc obtains
// page-aligned, anonymous memory directly from the OS via mmap (bypassing
// the Go heap and GC entirely), and Free releases it back. Construct a
// sampler.Allocator{Alloc: pagealloc.Alloc, Free: pagealloc.Free} to use
// it.
package pagealloc

import (
	"github.com/rtbhouse-apps/nvmesampler/internal/ints"
)

const pageSize = 4096

func alignedSize(size int) int {
	return int(ints.AlignUp(int64(size), int64(pageSize)))
}
