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

package sampler

import (
	"golang.org/x/sys/unix"
)

// openDirect opens path read-only with O_DIRECT (bypassing the page
// cache) and advises the kernel that access will be random and
// non-reused, since every read lands at a sampled, non-sequential offset
// and is never revisited before the file is closed.
func openDirect(path string, size int64) (int, error) {
	fd, err := unix.Open(path, unix.O_RDONLY|unix.O_DIRECT, 0)
	if err != nil {
		return -1, &IoError{Op: "open", Err: err}
	}
	if err := unix.Fadvise(fd, 0, size, unix.FADV_RANDOM); err != nil {
		unix.Close(fd)
		return -1, &IoError{Op: "fadvise(random)", Err: err}
	}
	if err := unix.Fadvise(fd, 0, size, unix.FADV_NOREUSE); err != nil {
		unix.Close(fd)
		return -1, &IoError{Op: "fadvise(noreuse)", Err: err}
	}
	return fd, nil
}

func closeDirect(fd int) error {
	if err := unix.Close(fd); err != nil {
		return &IoError{Op: "close", Err: err}
	}
	return nil
}
