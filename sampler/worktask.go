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

import "sync"

// subTaskKind is a tagged sum over sub-task shapes. Only readBatchBlock
// exists today; the tag is kept so a future kind (e.g. a prefetch or a
// flush sub-task) can be added without reshaping the dispatch in
// worker.go's main loop.
type subTaskKind int

const (
	subTaskReadBatchBlock subTaskKind = iota
)

// subTask is the unit of work a worker pops off the work queue.
type subTask struct {
	kind           subTaskKind
	readBatchBlock *readBatchBlockSubTask
}

// readBatchBlockTask is the parent of N readBatchBlockSubTasks that
// together fill one batchBlock. numDone is guarded by mu; the sub-task
// that observes numDone == numSubTasks resets the block's read index and
// hands it off on result.
type readBatchBlockTask struct {
	block       *batchBlock
	result      *handoffQueue
	numSubTasks int32

	mu      sync.Mutex
	numDone int32
}

func newReadBatchBlockTask(block *batchBlock, result *handoffQueue, numSubTasks int32) *readBatchBlockTask {
	return &readBatchBlockTask{block: block, result: result, numSubTasks: numSubTasks}
}

// markSubTaskDone records that one sub-task finished reaping and scattering
// its share of the block. The last sub-task to finish performs the
// block reset and handoff-queue push.
func (t *readBatchBlockTask) markSubTaskDone() {
	t.mu.Lock()
	t.numDone++
	done := t.numDone == t.numSubTasks
	t.mu.Unlock()
	if done {
		t.block.resetForProduction()
		t.result.push(t.block)
	}
}

// readBatchBlockSubTask is one of numSubTasks cooperating units that
// together fill a single block; it writes only to its own
// sub_task_offset slice of every column (see worker.go's scatter step).
type readBatchBlockSubTask struct {
	parent    *readBatchBlockTask
	subTaskID int32
}

// workQueue is an unbounded-in-practice MPMC queue of sub-task references
// (bounded in this implementation to NumBatchBlocks production tasks'
// worth of sub-tasks, which is the most that can ever be outstanding:
// a block is only ever resubmitted for production after the consumer has
// fully drained it and after its previous production round has completed).
// invalidate causes every worker to exit at its next pop.
type workQueue struct {
	ch   chan subTask
	done chan struct{}
}

func newWorkQueue(capacity int) *workQueue {
	return &workQueue{
		ch:   make(chan subTask, capacity),
		done: make(chan struct{}),
	}
}

func (q *workQueue) push(t subTask) {
	select {
	case q.ch <- t:
	case <-q.done:
	}
}

func (q *workQueue) pop() (subTask, bool) {
	select {
	case t := <-q.ch:
		return t, true
	default:
	}
	select {
	case t := <-q.ch:
		return t, true
	case <-q.done:
		return subTask{}, false
	}
}

func (q *workQueue) invalidate() {
	close(q.done)
}
