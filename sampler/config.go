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

// Package sampler implements a high-throughput random-sample stream over a
// large flat, row-major tensor file on direct-I/O-capable storage. See
// Coordinator for the public entry point.
package sampler

import (
	"github.com/rtbhouse-apps/nvmesampler/internal/ints"
)

const (
	// PageSize is the OS page size this package aligns buffers to.
	PageSize = 4096
	// SectorSize is the block-device sector size all direct-I/O reads
	// must be aligned to, both in offset and in length.
	SectorSize = 512
	// MaxChunkSize bounds how large a single chunk read (before head/tail
	// padding) is allowed to be.
	MaxChunkSize = PageSize * 16
	// NumBatchBlocks is the fixed number of double-buffered batch blocks.
	NumBatchBlocks = 2
	// AIOMaxBatchSize is the number of in-flight asynchronous read
	// requests a single worker keeps outstanding at once.
	AIOMaxBatchSize = 2048
	// MaxNumThreads is the hard ceiling on SamplerConfig.MaxNumThreads.
	MaxNumThreads = 64
	// MaxPermutationSize bounds the LCG modulus (and therefore
	// num_batches_in_block) to avoid overflow in the skip() closed form.
	MaxPermutationSize = 1 << 15
)

func init() {
	if PageSize%SectorSize != 0 {
		panic("invalid PageSize/SectorSize")
	}
	if !ints.IsPowerOfTwo[int64](SectorSize) {
		panic("invalid SectorSize")
	}
}

// TensorDescription is an immutable description of the on-disk tensor:
// file_path holds NumRows*RowSizeBytes bytes of contiguous, row-major data.
type TensorDescription struct {
	NumRows      int64
	RowSizeBytes int64
	FilePath     string
}

// Size returns the expected file size in bytes.
func (t TensorDescription) Size() int64 { return t.NumRows * t.RowSizeBytes }

func (t TensorDescription) validate(fileSize int64) error {
	if t.RowSizeBytes < 16 {
		return badConfigf("row_size_b %d is too small (minimum 16)", t.RowSizeBytes)
	}
	if t.RowSizeBytes > 16*PageSize {
		return badConfigf("row_size_b %d is too big (maximum %d)", t.RowSizeBytes, 16*PageSize)
	}
	if fileSize%t.RowSizeBytes != 0 {
		return badConfigf("file size %d is not a multiple of row_size_b %d", fileSize, t.RowSizeBytes)
	}
	if t.NumRows*t.RowSizeBytes != fileSize {
		return badConfigf("num_rows (%d) * row_size_b (%d) = %d does not match file size %d",
			t.NumRows, t.RowSizeBytes, t.NumRows*t.RowSizeBytes, fileSize)
	}
	return nil
}

// SamplerConfig carries the caller's batching and resource preferences.
type SamplerConfig struct {
	// MaxBatchElements is the number of rows returned per Next call.
	MaxBatchElements int64
	// MaxNumThreads is the worker pool size: a power of two in [1, 64].
	MaxNumThreads int64
	// MemoryUsageLimitBytes bounds the output buffer pool's footprint.
	MemoryUsageLimitBytes int64
	// Seed initializes every worker's permutation generator and chunk
	// sampler (offset by worker index). Fixing it together with
	// MaxNumThreads=1 yields a deterministic stream.
	Seed int32
}

func (c SamplerConfig) validate(rowSizeBytes int64) error {
	if c.MaxNumThreads <= 0 || c.MaxNumThreads > MaxNumThreads {
		return badConfigf("max_num_threads %d must be in [1, %d]", c.MaxNumThreads, MaxNumThreads)
	}
	if !ints.IsPowerOfTwo(c.MaxNumThreads) {
		return badConfigf("max_num_threads %d must be a power of two", c.MaxNumThreads)
	}
	if c.MaxBatchElements <= 0 {
		return badConfigf("max_batch_elements %d must be positive", c.MaxBatchElements)
	}
	if c.MaxBatchElements%c.MaxNumThreads != 0 {
		return badConfigf("max_batch_elements (%d) must be divisible by max_num_threads (%d)", c.MaxBatchElements, c.MaxNumThreads)
	}
	batchSizeBytes := rowSizeBytes * c.MaxBatchElements
	if batchSizeBytes*NumBatchBlocks > c.MemoryUsageLimitBytes {
		return badConfigf("max_batch_elements (%d) is too large for memory_usage_limit_b (%d)", c.MaxBatchElements, c.MemoryUsageLimitBytes)
	}
	return nil
}

// SamplingParameters is the computed read/batch plan produced by calculatePlan.
type SamplingParameters struct {
	ChunkSizeBytes    int64
	MaxChunkSizeBytes int64
	NumBatchesInBlock int64
	BatchSizeBytes    int64
	NumChunks         int64
}

// NumSamplesPerBlock is the total number of rows held by one batch block.
func (p SamplingParameters) NumSamplesPerBlock(cfg SamplerConfig) int64 {
	return p.NumBatchesInBlock * cfg.MaxBatchElements
}
