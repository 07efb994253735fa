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

// rowCopier is chosen once per batchBlock production round, not once per
// row: deciding on every row which copy routine fits would cost more than
// the routines themselves save. wideRowCopy is picked when every row is
// 32-byte aligned and at least 1024 bytes, matching the layout the
// original's AVX2 non-temporal-store path required; Go has no portable
// non-temporal store outside assembly, so wideRowCopy is a plain copy
// sized to move 32-byte words at a time rather than a byte at a time,
// which is the part of that path that still pays off without one.
type rowCopier func(dst, src []byte)

func selectRowCopier(rowSizeBytes int64) rowCopier {
	if rowSizeBytes%32 == 0 && rowSizeBytes >= 1024 {
		return wideRowCopy
	}
	return scalarRowCopy
}

func scalarRowCopy(dst, src []byte) {
	copy(dst, src)
}

func wideRowCopy(dst, src []byte) {
	const word = 32
	n := len(src) - len(src)%word
	for i := 0; i < n; i += word {
		copy(dst[i:i+word:i+word], src[i:i+word:i+word])
	}
	if n < len(src) {
		copy(dst[n:], src[n:])
	}
}
