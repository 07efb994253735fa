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
	"testing"
	"time"
)

func TestBatchBlockTake(t *testing.T) {
	const rowSize, numSamples = 16, 8
	buf := make([]byte, rowSize*numSamples)
	b := newBatchBlock(rowSize, numSamples, buf)

	if got := b.samplesLeft(); got != numSamples {
		t.Fatalf("samplesLeft() = %d, want %d", got, numSamples)
	}

	first := b.take(3)
	if len(first) != 3*rowSize {
		t.Fatalf("take(3) returned %d bytes, want %d", len(first), 3*rowSize)
	}
	if b.samplesLeft() != numSamples-3 {
		t.Fatalf("samplesLeft() after take(3) = %d, want %d", b.samplesLeft(), numSamples-3)
	}

	second := b.take(5)
	if len(second) != 5*rowSize {
		t.Fatalf("take(5) returned %d bytes, want %d", len(second), 5*rowSize)
	}
	if b.samplesLeft() != 0 {
		t.Fatalf("samplesLeft() after draining = %d, want 0", b.samplesLeft())
	}

	b.resetForProduction()
	if b.samplesLeft() != numSamples {
		t.Fatalf("samplesLeft() after resetForProduction = %d, want %d", b.samplesLeft(), numSamples)
	}
}

func TestHandoffQueuePushPop(t *testing.T) {
	q := newHandoffQueue()
	b1 := newBatchBlock(16, 8, make([]byte, 128))
	b2 := newBatchBlock(16, 8, make([]byte, 128))

	q.push(b1)
	q.push(b2)

	got1, ok := q.pop()
	if !ok || got1 != b1 {
		t.Fatalf("pop() = (%v, %v), want (%v, true)", got1, ok, b1)
	}
	got2, ok := q.pop()
	if !ok || got2 != b2 {
		t.Fatalf("pop() = (%v, %v), want (%v, true)", got2, ok, b2)
	}
}

func TestHandoffQueueInvalidateWakesPop(t *testing.T) {
	q := newHandoffQueue()
	done := make(chan struct{})
	var gotOK bool
	go func() {
		_, gotOK = q.pop()
		close(done)
	}()

	q.invalidate()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("pop() did not return after invalidate()")
	}
	if gotOK {
		t.Fatal("pop() returned ok=true after invalidate()")
	}
}
