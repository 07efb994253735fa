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

import "testing"

func checkPlanInvariants(t *testing.T, fileSizeBytes, rowSizeBytes int64, cfg SamplerConfig, p SamplingParameters) {
	t.Helper()
	if p.ChunkSizeBytes%PageSize != 0 {
		t.Errorf("chunk_size_b %d is not a multiple of PageSize", p.ChunkSizeBytes)
	}
	if p.ChunkSizeBytes > MaxChunkSize {
		t.Errorf("chunk_size_b %d exceeds MaxChunkSize", p.ChunkSizeBytes)
	}
	if p.ChunkSizeBytes < rowSizeBytes {
		t.Errorf("chunk_size_b %d is smaller than row_size_b %d", p.ChunkSizeBytes, rowSizeBytes)
	}
	if p.NumBatchesInBlock < 4 || p.NumBatchesInBlock&(p.NumBatchesInBlock-1) != 0 {
		t.Errorf("num_batches_in_block %d is not a power of two >= 4", p.NumBatchesInBlock)
	}
	if p.NumBatchesInBlock < p.MaxChunkSizeBytes/rowSizeBytes {
		t.Errorf("num_batches_in_block %d is smaller than max_chunk_size_b/row_size_b %d", p.NumBatchesInBlock, p.MaxChunkSizeBytes/rowSizeBytes)
	}
	wantBatchSizeBytes := rowSizeBytes * cfg.MaxBatchElements
	if p.BatchSizeBytes != wantBatchSizeBytes {
		t.Errorf("batch_size_b = %d, want %d", p.BatchSizeBytes, wantBatchSizeBytes)
	}
	wantNumChunks := fileSizeBytes/p.ChunkSizeBytes - 1
	if p.NumChunks != wantNumChunks {
		t.Errorf("num_chunks = %d, want %d", p.NumChunks, wantNumChunks)
	}
	used := 2 * p.NumBatchesInBlock * p.BatchSizeBytes
	if used >= cfg.MemoryUsageLimitBytes {
		t.Errorf("used memory %d does not fit memory_usage_limit_b %d", used, cfg.MemoryUsageLimitBytes)
	}
}

func TestCalculatePlanScenario1(t *testing.T) {
	// 4 KiB rows x 1024 rows: one batch per chunk, single-threaded.
	const rowSizeBytes = 4096
	const numRows = 1024
	fileSizeBytes := int64(rowSizeBytes * numRows)
	cfg := SamplerConfig{
		MaxBatchElements:      32,
		MaxNumThreads:         1,
		MemoryUsageLimitBytes: 16 << 20,
		Seed:                  7,
	}
	p, err := calculatePlan(fileSizeBytes, rowSizeBytes, cfg)
	if err != nil {
		t.Fatalf("calculatePlan: %v", err)
	}
	if p.ChunkSizeBytes != 4096 {
		t.Errorf("chunk_size_b = %d, want 4096", p.ChunkSizeBytes)
	}
	if p.NumBatchesInBlock < 32 {
		t.Errorf("num_batches_in_block = %d, want >= 32", p.NumBatchesInBlock)
	}
	checkPlanInvariants(t, fileSizeBytes, rowSizeBytes, cfg, p)
}

func TestCalculatePlanScenario2(t *testing.T) {
	// 24-byte rows x 1,000,000 rows: many rows per chunk, multi-threaded.
	const rowSizeBytes = 24
	const numRows = 1_000_000
	fileSizeBytes := int64(rowSizeBytes * numRows)
	cfg := SamplerConfig{
		MaxBatchElements:      64,
		MaxNumThreads:         4,
		MemoryUsageLimitBytes: 64 << 20,
		Seed:                  0,
	}
	p, err := calculatePlan(fileSizeBytes, rowSizeBytes, cfg)
	if err != nil {
		t.Fatalf("calculatePlan: %v", err)
	}
	if p.ChunkSizeBytes != 12288 && p.ChunkSizeBytes != 24576 {
		t.Errorf("chunk_size_b = %d, want 12288 or 24576", p.ChunkSizeBytes)
	}
	checkPlanInvariants(t, fileSizeBytes, rowSizeBytes, cfg, p)
}

func TestCalculatePlanLastChunkDropped(t *testing.T) {
	// 1025 chunks' worth of 4096-byte rows: the last chunk is dropped from
	// num_chunks.
	const rowSizeBytes = 4096
	fileSizeBytes := int64(1025 * 4096)
	cfg := SamplerConfig{
		MaxBatchElements:      32,
		MaxNumThreads:         1,
		MemoryUsageLimitBytes: 16 << 20,
	}
	p, err := calculatePlan(fileSizeBytes, rowSizeBytes, cfg)
	if err != nil {
		t.Fatalf("calculatePlan: %v", err)
	}
	if p.ChunkSizeBytes != 4096 {
		t.Fatalf("chunk_size_b = %d, want 4096", p.ChunkSizeBytes)
	}
	if p.NumChunks != 1024 {
		t.Errorf("num_chunks = %d, want 1024", p.NumChunks)
	}
}

func TestCalculatePlanInfeasible(t *testing.T) {
	// row_size_b just under MAX_CHUNK_SIZE with a memory budget too small
	// to fit even 4 batches per block.
	const rowSizeBytes = 65520
	fileSizeBytes := int64(rowSizeBytes * 100)
	cfg := SamplerConfig{
		MaxBatchElements:      1,
		MaxNumThreads:         1,
		MemoryUsageLimitBytes: rowSizeBytes * 4,
	}
	_, err := calculatePlan(fileSizeBytes, rowSizeBytes, cfg)
	if err == nil {
		t.Fatal("expected PlanInfeasibleError, got nil")
	}
	if _, ok := err.(*PlanInfeasibleError); !ok {
		t.Fatalf("expected *PlanInfeasibleError, got %T: %v", err, err)
	}
}
