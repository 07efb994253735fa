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
	"sync"
	"testing"
)

func TestReadBatchBlockTaskMarksDoneOnlyOnce(t *testing.T) {
	block := newBatchBlock(16, 8, make([]byte, 128))
	block.readIdx = 5 // simulate a partially-drained block being resubmitted
	result := newHandoffQueue()
	const numSubTasks = 4

	task := newReadBatchBlockTask(block, result, numSubTasks)

	var wg sync.WaitGroup
	wg.Add(numSubTasks)
	for i := 0; i < numSubTasks; i++ {
		go func() {
			defer wg.Done()
			task.markSubTaskDone()
		}()
	}
	wg.Wait()

	got, ok := result.pop()
	if !ok {
		t.Fatal("expected the block to be pushed to the result queue exactly once")
	}
	if got != block {
		t.Fatal("pushed block does not match the task's block")
	}
	if got.readIdx != 0 {
		t.Fatalf("readIdx after production = %d, want 0", got.readIdx)
	}

	select {
	case <-result.ch:
		t.Fatal("block was pushed to the result queue more than once")
	default:
	}
}

func TestWorkQueuePushPopInvalidate(t *testing.T) {
	q := newWorkQueue(2)
	task := newReadBatchBlockTask(newBatchBlock(16, 8, make([]byte, 128)), newHandoffQueue(), 1)
	sub := subTask{kind: subTaskReadBatchBlock, readBatchBlock: &readBatchBlockSubTask{parent: task, subTaskID: 0}}

	q.push(sub)
	got, ok := q.pop()
	if !ok || got.readBatchBlock != sub.readBatchBlock {
		t.Fatalf("pop() = (%v, %v), want (%v, true)", got, ok, sub)
	}

	q.invalidate()
	if _, ok := q.pop(); ok {
		t.Fatal("pop() after invalidate() should return ok=false")
	}
}
