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

import "math/rand"

// chunkSampler draws uniformly-distributed chunk indices in [0, numChunks)
// for one worker. Each worker owns an independent generator (no shared
// locking, no de-duplication across workers or across draws) seeded from
// threadIdx + cfg.Seed, so fixing the seed with a single worker yields a
// deterministic stream of chunks.
type chunkSampler struct {
	numChunks int64
	rng       *rand.Rand
}

func newChunkSampler(numChunks int64, seed int64) *chunkSampler {
	if numChunks <= 0 {
		panic("chunkSampler: numChunks must be positive")
	}
	return &chunkSampler{
		numChunks: numChunks,
		rng:       rand.New(rand.NewSource(seed)),
	}
}

// next draws a uniform chunk index. Drawing the same chunk twice is
// permitted and expected; no exact-uniform-coverage guarantee is made.
func (c *chunkSampler) next() int64 {
	return c.rng.Int63n(c.numChunks)
}
