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

const maxWastedReadRatio = 0.05

// calculatePlan enumerates (num_batches_in_block, chunk_size_b) pairs and
// returns the first one that fits the memory budget while keeping wasted
// read bytes under maxWastedReadRatio. num_batches_in_block is walked
// downward from the largest power of two
// that fits the memory budget; for each candidate, chunk_size_b is walked
// upward in PageSize steps. The search favors the largest block (best
// amortizes AIO submission overhead) over the smallest chunk.
func calculatePlan(fileSizeBytes, rowSizeBytes int64, cfg SamplerConfig) (SamplingParameters, error) {
	batchSizeBytes := rowSizeBytes * cfg.MaxBatchElements
	if batchSizeBytes > fileSizeBytes {
		return SamplingParameters{}, badConfigf("max_batch_elements (%d) is too large for this file", cfg.MaxBatchElements)
	}

	maxNumBatchesInBlock := ints.Min(int64(MaxPermutationSize), cfg.MemoryUsageLimitBytes/NumBatchBlocks/batchSizeBytes)
	if maxNumBatchesInBlock < 4 {
		return SamplingParameters{}, &PlanInfeasibleError{Reason: "memory_usage_limit_b is too small to fit even the minimum 4 batches per block"}
	}

	for numBatchesInBlock := ints.RoundUpToPowerOfTwo(maxNumBatchesInBlock); numBatchesInBlock >= 4; numBatchesInBlock >>= 1 {
		for chunkSizeBytes := int64(PageSize); chunkSizeBytes <= MaxChunkSize; chunkSizeBytes += PageSize {
			usedMemoryBytes := numBatchesInBlock * batchSizeBytes * NumBatchBlocks

			remainderBytes := int64(0)
			if chunkSizeBytes%rowSizeBytes != 0 {
				remainderBytes = rowSizeBytes - chunkSizeBytes%rowSizeBytes
			}
			additionalReadBytes := int64(0)
			if remainderBytes != 0 {
				additionalReadBytes = ints.AlignUp(remainderBytes, int64(SectorSize))
			}
			totalReadBytes := additionalReadBytes + chunkSizeBytes
			// additionalReadBytes - remainderBytes isn't quite "wasted
			// bytes / bytes read": remainderBytes is genuinely read, it
			// just belongs to a row dropped at the chunk boundary. Kept
			// as the ratio that actually governs the search below.
			wastedBytes := additionalReadBytes - remainderBytes
			wastedRatio := float64(wastedBytes) / float64(totalReadBytes)

			maxChunkSizeBytes := ints.AlignUp(ints.AlignUp(chunkSizeBytes, rowSizeBytes)+2*SectorSize, int64(SectorSize))
			numChunks := fileSizeBytes/chunkSizeBytes - 1
			maxNumElementsInChunk := maxChunkSizeBytes / rowSizeBytes

			if chunkSizeBytes >= rowSizeBytes &&
				usedMemoryBytes < cfg.MemoryUsageLimitBytes &&
				wastedRatio <= maxWastedReadRatio &&
				numBatchesInBlock >= maxNumElementsInChunk {
				return SamplingParameters{
					ChunkSizeBytes:    chunkSizeBytes,
					MaxChunkSizeBytes: maxChunkSizeBytes,
					NumBatchesInBlock: numBatchesInBlock,
					BatchSizeBytes:    batchSizeBytes,
					NumChunks:         numChunks,
				}, nil
			}
		}
	}

	return SamplingParameters{}, &PlanInfeasibleError{
		Reason: "no (num_batches_in_block, chunk_size_b) pair satisfies the memory budget and wasted-read-ratio constraints; increase memory_usage_limit_b",
	}
}
