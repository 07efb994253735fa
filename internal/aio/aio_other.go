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

//go:build !linux
// +build !linux

package aio

import "syscall"

// Context is the non-Linux fallback: Submit performs every read
// synchronously (via pread) and stashes the results for Reap to drain in
// order. There is no real queue depth here, only API compatibility, so
// that sampler builds and its tests run on a development machine without
// kernel AIO.
type Context struct {
	fd      int
	depth   int
	pending []Completion
}

func NewContext(fd, depth int) (*Context, error) {
	return &Context{fd: fd, depth: depth}, nil
}

func (c *Context) Submit(reqs []Request) error {
	if len(reqs) > c.depth {
		return &Error{Op: "io_submit", Err: errTooManyRequests}
	}
	c.pending = c.pending[:0]
	for i, r := range reqs {
		n, err := syscall.Pread(c.fd, r.Buf, r.Offset)
		if err != nil {
			c.pending = append(c.pending, Completion{Index: i, Result: -1, Err: err})
			continue
		}
		c.pending = append(c.pending, Completion{Index: i, Result: n})
	}
	return nil
}

func (c *Context) Reap(pending int, out []Completion, timeoutNanos int64) (int, error) {
	n := copy(out, c.pending)
	c.pending = c.pending[n:]
	return n, nil
}

func (c *Context) Close() error {
	return nil
}
