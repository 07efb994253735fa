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

//go:build linux
// +build linux

package aio

import (
	"unsafe"

	"golang.org/x/sys/unix"
)

// iocbCmdPread is IOCB_CMD_PREAD from linux/aio_abi.h.
const iocbCmdPread = 0

// iocb mirrors struct iocb from linux/aio_abi.h (64 bytes on every arch
// this package supports). aioData carries the Request's index in the
// current batch so a completion can be matched back to its Request/Buf
// without a secondary lookup table.
type iocb struct {
	aioData     uint64
	aioKey      uint32
	aioRWFlags  uint32
	aioLioOpcode uint16
	aioReqPrio  int16
	aioFildes   uint32
	aioBuf      uint64
	aioNbytes   uint64
	aioOffset   int64
	aioReserved2 uint64
	aioFlags    uint32
	aioResFD    uint32
}

// ioEvent mirrors struct io_event from linux/aio_abi.h (32 bytes).
type ioEvent struct {
	data uint64
	obj  uint64
	res  int64
	res2 int64
}

// Context drives up to depth in-flight kernel-AIO requests against fd. A
// Context is single-threaded: one goroutine submits and reaps.
type Context struct {
	fd       int
	ctxID    uint64
	depth    int
	iocbs    []iocb
	iocbPtrs []uintptr
	events   []ioEvent
}

// NewContext sets up a kernel AIO context sized for depth in-flight
// requests against fd.
func NewContext(fd, depth int) (*Context, error) {
	c := &Context{
		fd:       fd,
		depth:    depth,
		iocbs:    make([]iocb, depth),
		iocbPtrs: make([]uintptr, depth),
		events:   make([]ioEvent, depth),
	}
	for i := range c.iocbs {
		c.iocbPtrs[i] = uintptr(unsafe.Pointer(&c.iocbs[i]))
	}
	_, _, errno := unix.Syscall(unix.SYS_IO_SETUP, uintptr(depth), uintptr(unsafe.Pointer(&c.ctxID)), 0)
	if errno != 0 {
		return nil, &Error{Op: "io_setup", Err: errno}
	}
	return c, nil
}

// Submit prepares and issues len(reqs) reads in one io_submit call. A
// partial submit (fewer accepted than requested) is reported as an error
// rather than silently retried, since the caller (worker.readBlock) treats
// any Context error as fatal to its whole read.
func (c *Context) Submit(reqs []Request) error {
	n := len(reqs)
	if n > c.depth {
		return &Error{Op: "io_submit", Err: errTooManyRequests}
	}
	for i, r := range reqs {
		cb := &c.iocbs[i]
		*cb = iocb{
			aioData:      uint64(i),
			aioLioOpcode: iocbCmdPread,
			aioFildes:    uint32(c.fd),
			aioBuf:       uint64(uintptr(unsafe.Pointer(&r.Buf[0]))),
			aioNbytes:    uint64(len(r.Buf)),
			aioOffset:    r.Offset,
		}
	}
	ret, _, errno := unix.Syscall(unix.SYS_IO_SUBMIT, uintptr(c.ctxID), uintptr(n), uintptr(unsafe.Pointer(&c.iocbPtrs[0])))
	if errno != 0 {
		return &Error{Op: "io_submit", Err: errno}
	}
	if int(ret) != n {
		return &Error{Op: "io_submit", Err: errPartialSubmit}
	}
	return nil
}

// Reap polls for between min(10, pending) and min(128, pending) completed
// requests, waiting up to timeoutNanos nanoseconds, and writes completions
// (bounded by len(out)) into out starting at out[0]. It returns the number
// of completions written.
func (c *Context) Reap(pending int, out []Completion, timeoutNanos int64) (int, error) {
	minNr := pending
	if minNr > 10 {
		minNr = 10
	}
	maxNr := pending
	if maxNr > 128 {
		maxNr = 128
	}
	if maxNr > len(out) {
		maxNr = len(out)
	}
	if maxNr > len(c.events) {
		maxNr = len(c.events)
	}
	ts := unix.Timespec{Sec: 0, Nsec: timeoutNanos}
	ret, _, errno := unix.Syscall6(unix.SYS_IO_GETEVENTS,
		uintptr(c.ctxID), uintptr(minNr), uintptr(maxNr),
		uintptr(unsafe.Pointer(&c.events[0])), uintptr(unsafe.Pointer(&ts)), 0)
	if errno != 0 {
		return 0, &Error{Op: "io_getevents", Err: errno}
	}
	n := int(ret)
	for i := 0; i < n; i++ {
		ev := &c.events[i]
		out[i] = Completion{Index: int(ev.data), Result: int(ev.res)}
	}
	return n, nil
}

// Close tears down the kernel AIO context. In-flight requests are allowed
// to complete naturally before this is called; the caller is responsible
// for reaping every submitted request first.
func (c *Context) Close() error {
	_, _, errno := unix.Syscall(unix.SYS_IO_DESTROY, uintptr(c.ctxID), 0, 0)
	if errno != 0 {
		return &Error{Op: "io_destroy", Err: errno}
	}
	return nil
}
