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
	"errors"
	"os"
	"sync"
)

// Logger receives diagnostic lines from a Coordinator: worker pool
// shutdown on a fatal I/O error, nothing else. Nil is fine and disables
// logging entirely.
type Logger interface {
	Printf(f string, args ...interface{})
}

var errClosed = errors.New("nvmesampler: read from closed sampler")

// Coordinator is the public entry point: it opens the tensor file,
// computes a sampling plan, starts MaxNumThreads workers filling
// NumBatchBlocks batch blocks in the background, and hands out
// successive batches of rows through Next.
type Coordinator struct {
	// Logger, if non-nil, is used to log the fatal I/O error that shuts
	// a worker pool down. Set before calling Next for the first time;
	// it is read without synchronization afterward.
	Logger Logger

	tensor TensorDescription
	config SamplerConfig
	params SamplingParameters

	fd   int
	pool *bufferPool

	blocks    [NumBatchBlocks]*batchBlock
	workQueue *workQueue
	handoff   *handoffQueue
	workers   []*worker
	wg        sync.WaitGroup

	current *batchBlock

	fatalOnce sync.Once
	fatalErr  error
}

// New validates tensor and cfg, computes a sampling plan, opens the
// tensor file for direct I/O, and starts the worker pool. allocator is
// invoked exactly once, to obtain the backing storage for both batch
// blocks; it is freed on Close.
func New(tensor TensorDescription, cfg SamplerConfig, allocator Allocator) (*Coordinator, error) {
	fi, err := os.Stat(tensor.FilePath)
	if err != nil {
		return nil, &IoError{Op: "stat", Err: err}
	}
	if err := tensor.validate(fi.Size()); err != nil {
		return nil, err
	}
	if err := cfg.validate(tensor.RowSizeBytes); err != nil {
		return nil, err
	}

	params, err := calculatePlan(tensor.Size(), tensor.RowSizeBytes, cfg)
	if err != nil {
		return nil, err
	}

	fd, err := openDirect(tensor.FilePath, tensor.Size())
	if err != nil {
		return nil, err
	}

	numSamplesPerBlock := params.NumSamplesPerBlock(cfg)
	blockSizeBytes := numSamplesPerBlock * tensor.RowSizeBytes
	pool := newBufferPool(blockSizeBytes, allocator)

	c := &Coordinator{
		tensor:    tensor,
		config:    cfg,
		params:    params,
		fd:        fd,
		pool:      pool,
		workQueue: newWorkQueue(int(cfg.MaxNumThreads) * NumBatchBlocks),
		handoff:   newHandoffQueue(),
	}
	for i := range c.blocks {
		c.blocks[i] = newBatchBlock(tensor.RowSizeBytes, numSamplesPerBlock, pool.blocks[i])
	}

	for i := int32(0); i < int32(cfg.MaxNumThreads); i++ {
		w, err := newWorker(i, tensor, cfg, params, fd, c.workQueue, c.Logger)
		if err != nil {
			c.shutdownPartial()
			return nil, err
		}
		c.workers = append(c.workers, w)
	}

	c.wg.Add(len(c.workers))
	for _, w := range c.workers {
		w := w
		go func() {
			defer c.wg.Done()
			w.run(c.reportFatal)
		}()
	}

	for _, b := range c.blocks {
		c.scheduleBatchBlockReading(b)
	}

	return c, nil
}

// shutdownPartial releases whatever New had already set up when a later
// step in construction fails.
func (c *Coordinator) shutdownPartial() {
	for _, w := range c.workers {
		w.close()
	}
	closeDirect(c.fd)
	c.pool.close()
}

// reportFatal records the first fatal I/O error observed by any worker
// and invalidates both queues so every other worker unblocks from its
// next pop and Next returns the error instead of hanging forever.
func (c *Coordinator) reportFatal(err error) {
	c.fatalOnce.Do(func() {
		c.fatalErr = err
		if c.Logger != nil {
			c.Logger.Printf("nvmesampler: worker pool shutting down after fatal error: %v", err)
		}
		c.workQueue.invalidate()
		c.handoff.invalidate()
	})
}

func (c *Coordinator) scheduleBatchBlockReading(b *batchBlock) {
	numSubTasks := int32(c.config.MaxNumThreads)
	task := newReadBatchBlockTask(b, c.handoff, numSubTasks)
	for i := int32(0); i < numSubTasks; i++ {
		c.workQueue.push(subTask{
			kind:           subTaskReadBatchBlock,
			readBatchBlock: &readBatchBlockSubTask{parent: task, subTaskID: i},
		})
	}
}

// Next returns the next batchSize rows sampled uniformly at random (with
// replacement, from every chunk of the file except the last) from the
// tensor, as a slice over the Coordinator's internal buffer. The slice is
// only valid until the next call to Next or Close.
//
// When the current block has batchSize or fewer samples left, the
// remainder of that block (up to batchSize rows) is discarded and the
// block is resubmitted for production before a fresh block is drawn,
// rather than draining every block down to a short final batch.
func (c *Coordinator) Next(batchSize int64) ([]byte, error) {
	if c.fatalErr != nil {
		return nil, c.fatalErr
	}
	if c.current == nil {
		if err := c.fetchNextBatchBlock(); err != nil {
			return nil, err
		}
	}

	if c.current.samplesLeft() > batchSize {
		return c.current.take(batchSize), nil
	}

	b := c.current
	c.current = nil
	c.scheduleBatchBlockReading(b)
	return c.Next(batchSize)
}

func (c *Coordinator) fetchNextBatchBlock() error {
	b, ok := c.handoff.pop()
	if !ok {
		if c.fatalErr != nil {
			return c.fatalErr
		}
		return errClosed
	}
	c.current = b
	return nil
}

// Close invalidates both queues, waits for every worker to return, closes
// each worker's AIO context and the tensor file descriptor, and frees the
// output buffer through the Allocator passed to New. The Coordinator must
// not be used afterward.
func (c *Coordinator) Close() error {
	// reportFatal may already have invalidated both queues; sharing its
	// sync.Once keeps either queue from being invalidated twice.
	c.fatalOnce.Do(func() {
		c.workQueue.invalidate()
		c.handoff.invalidate()
	})
	c.wg.Wait()

	var first error
	for _, w := range c.workers {
		if err := w.close(); err != nil && first == nil {
			first = err
		}
	}
	if err := closeDirect(c.fd); err != nil && first == nil {
		first = err
	}
	c.pool.close()
	return first
}
