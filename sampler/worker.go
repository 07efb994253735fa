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
	"time"

	"github.com/rtbhouse-apps/nvmesampler/internal/aio"
	"github.com/rtbhouse-apps/nvmesampler/internal/ints"
)

const reapTimeout = 100 * time.Millisecond

// readDescriptionPermutation is one of up to two permutation "runs" a
// single chunk read can straddle: a chunk read can finish filling one
// output column and spill into the next, so up to two (state,
// num_elements) pairs may apply across the elements of one read.
type readDescriptionPermutation struct {
	state       lcgState
	numElements int64
}

// readDescription is the bookkeeping a worker carries from the moment it
// decides to read a chunk until the read completes and is scattered into
// the batch block.
type readDescription struct {
	chunkIdx     int64
	readOffset   int64
	readSize     int64
	dataOffset   int64
	numElements  int64
	targetColumn int64
	permutations [2]readDescriptionPermutation
}

// worker drives one slice of the worker pool: its own kernel AIO context,
// its own pre-allocated read buffer and read-description slab, and its
// own independent permutation generator and chunk sampler, so that no
// cross-worker synchronization is needed beyond the shared work queue and
// the handoff queue reached through each sub-task's parent task.
type worker struct {
	threadIdx int32
	tensor    TensorDescription
	config    SamplerConfig
	params    SamplingParameters
	fd        int
	workQueue *workQueue
	logger    Logger

	aioCtx      *aio.Context
	readBuf     []byte
	reqs        []aio.Request
	descs       []readDescription
	completions []aio.Completion

	permGen      *permutationGenerator
	chunkSampler *chunkSampler
	copier       rowCopier
}

func newWorker(threadIdx int32, tensor TensorDescription, cfg SamplerConfig, params SamplingParameters, fd int, wq *workQueue, logger Logger) (*worker, error) {
	aioCtx, err := aio.NewContext(fd, AIOMaxBatchSize)
	if err != nil {
		return nil, &IoError{Op: "aio setup", Err: err}
	}

	w := &worker{
		threadIdx:    threadIdx,
		tensor:       tensor,
		config:       cfg,
		params:       params,
		fd:           fd,
		workQueue:    wq,
		logger:       logger,
		aioCtx:       aioCtx,
		readBuf:      newPageAlignedBuffer(params.MaxChunkSizeBytes * AIOMaxBatchSize),
		reqs:         make([]aio.Request, AIOMaxBatchSize),
		descs:        make([]readDescription, AIOMaxBatchSize),
		completions:  make([]aio.Completion, AIOMaxBatchSize),
		permGen:      newPermutationGenerator(params.NumBatchesInBlock, int64(threadIdx)+int64(cfg.Seed)),
		chunkSampler: newChunkSampler(params.NumChunks, int64(threadIdx)+int64(cfg.Seed)),
		copier:       selectRowCopier(tensor.RowSizeBytes),
	}
	return w, nil
}

func (w *worker) close() error {
	return w.aioCtx.Close()
}

// run pops sub-tasks until the work queue is invalidated. A fatal I/O
// error aborts the whole worker pool: the error is reported to onFatal
// (which invalidates every queue, unblocking every other worker and the
// consumer) and this worker returns.
func (w *worker) run(onFatal func(error)) {
	for {
		t, ok := w.workQueue.pop()
		if !ok {
			return
		}
		switch t.kind {
		case subTaskReadBatchBlock:
			if err := w.readBlock(t.readBatchBlock); err != nil {
				onFatal(err)
				return
			}
		}
	}
}

// readBlock fills this sub-task's numElementsToRead share of the parent
// block, one AIOMaxBatchSize-wide wave of chunk reads at a time, and
// marks the sub-task done once every element has been scattered in.
func (w *worker) readBlock(sub *readBatchBlockSubTask) error {
	numSubTasks := int64(sub.parent.numSubTasks)
	numElementsToRead := sub.parent.block.numSamples / numSubTasks

	perm := w.permGen.startNewPermutation()
	numElementsLeftInColumn := w.params.NumBatchesInBlock
	targetColumn := int64(0)

	for numElementsToRead > 0 {
		n := 0
		for n < AIOMaxBatchSize && numElementsToRead > 0 {
			desc := w.createReadDescription(&numElementsToRead, &perm, &numElementsLeftInColumn, &targetColumn)
			w.descs[n] = desc

			bufStart := int64(n) * w.params.MaxChunkSizeBytes
			buf := w.readBuf[bufStart : bufStart+desc.readSize]
			w.reqs[n] = aio.Request{Offset: desc.readOffset, Buf: buf}
			n++
		}

		if err := w.aioCtx.Submit(w.reqs[:n]); err != nil {
			return &IoError{Op: "aio submit", Err: err}
		}

		pending := n
		for pending > 0 {
			got, err := w.aioCtx.Reap(pending, w.completions, reapTimeout.Nanoseconds())
			if err != nil {
				return &IoError{Op: "aio reap", Err: err}
			}
			for i := 0; i < got; i++ {
				c := w.completions[i]
				desc := &w.descs[c.Index]
				if c.Err != nil {
					return c.Err
				}
				if int64(c.Result) != desc.readSize {
					return &ShortReadError{Want: desc.readSize, Got: int64(c.Result), Offset: desc.readOffset}
				}
				w.handleFinishedRead(sub, desc, w.reqs[c.Index].Buf)
			}
			pending -= got
		}
	}

	sub.parent.markSubTaskDone()
	return nil
}

// computeReadWindow left- and right-aligns the raw [chunkIdx*chunkSizeBytes,
// +chunkSizeBytes) window to row boundaries (dropping a leading partial
// row, pulling in a trailing partial row) and then to SECTOR_SIZE (since
// direct I/O requires sector-aligned offsets and lengths), returning the
// resulting read offset, read length, the byte offset of the first whole
// row within the read-back buffer, and how many whole rows it covers.
func computeReadWindow(chunkIdx, chunkSizeBytes, rowSizeBytes int64) (readStart, readSize, dataOffset, numElements int64) {
	readStart = chunkIdx * chunkSizeBytes
	readEnd := readStart + chunkSizeBytes
	dataSizeBytes := readEnd - readStart

	if readStart%rowSizeBytes != 0 {
		remainder := readStart % rowSizeBytes
		skip := rowSizeBytes - remainder
		readStart += ints.AlignDown(skip, int64(SectorSize))
		dataSizeBytes -= skip
	}
	if readEnd%rowSizeBytes != 0 {
		remainder := readEnd % rowSizeBytes
		add := rowSizeBytes - remainder
		readEnd += ints.AlignUp(add, int64(SectorSize))
		dataSizeBytes += add
	}

	readSize = readEnd - readStart
	if readStart%rowSizeBytes != 0 {
		dataOffset = rowSizeBytes - readStart%rowSizeBytes
	}
	numElements = dataSizeBytes / rowSizeBytes
	return readStart, readSize, dataOffset, numElements
}

// createReadDescription picks the next chunk to read and computes its
// sector-aligned read window with computeReadWindow (a leading partial row
// is dropped, a trailing partial row is pulled in whole). The rows it
// scatters are capped at *numElementsToRead, so the last read of a
// sub-task never writes past the sub-task's share of the block. It also
// advances the caller's running permutation/column state by exactly the
// number of elements this read will consume, including starting a fresh
// permutation if this read fills out the current output column.
func (w *worker) createReadDescription(numElementsToRead *int64, perm *lcgState, numElementsLeftInColumn, targetColumn *int64) readDescription {
	chunkIdx := w.chunkSampler.next()
	readStart, readSize, dataOffset, numChunkElements := computeReadWindow(chunkIdx, w.params.ChunkSizeBytes, w.tensor.RowSizeBytes)
	numChunkElements = ints.Min(numChunkElements, *numElementsToRead)
	numPermElements := ints.Min(*numElementsLeftInColumn, numChunkElements)
	*numElementsLeftInColumn -= numPermElements

	desc := readDescription{
		chunkIdx:     chunkIdx,
		readOffset:   readStart,
		readSize:     readSize,
		dataOffset:   dataOffset,
		numElements:  numChunkElements,
		targetColumn: *targetColumn,
		permutations: [2]readDescriptionPermutation{
			{state: *perm, numElements: numPermElements},
		},
	}

	if *numElementsLeftInColumn == 0 {
		*perm = w.permGen.startNewPermutation()
		*numElementsLeftInColumn = w.params.NumBatchesInBlock
		numPermElements = numChunkElements - numPermElements
		*numElementsLeftInColumn -= numPermElements
		*targetColumn++
		desc.permutations[1] = readDescriptionPermutation{state: *perm, numElements: numPermElements}
	}

	if numPermElements > 0 {
		perm.skip(int32(numPermElements))
	}

	*numElementsToRead -= numChunkElements
	return desc
}

// handleFinishedRead scatters every row of one completed chunk read into
// its column-major slot in the batch block: element i of the read lands
// at column (target_column + carry), row perm.state.element, where carry
// increments once the first permutation run in this read is exhausted.
func (w *worker) handleFinishedRead(sub *readBatchBlockSubTask, desc *readDescription, readData []byte) {
	perm := desc.permutations[0]
	targetColumn := desc.targetColumn
	block := sub.parent.block
	batchSizeBytes := w.params.BatchSizeBytes
	subTaskOffset := batchSizeBytes / int64(sub.parent.numSubTasks) * int64(sub.subTaskID)
	elementSizeBytes := w.tensor.RowSizeBytes

	readData = readData[desc.dataOffset:]

	for elementIdx := int64(0); elementIdx < desc.numElements; elementIdx++ {
		if perm.numElements == 0 {
			perm = desc.permutations[1]
			targetColumn++
		}

		dstStart := subTaskOffset + targetColumn*elementSizeBytes + int64(perm.state.element)*batchSizeBytes
		dst := block.buf[dstStart : dstStart+elementSizeBytes]
		src := readData[elementSizeBytes*elementIdx : elementSizeBytes*elementIdx+elementSizeBytes]
		w.copier(dst, src)

		perm.state.next()
		perm.numElements--
	}
}
