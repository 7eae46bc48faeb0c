// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pagefile implements the checksummed byte store underneath a
// cloudpack container.  The physical file is a sequence of fixed-size
// pages, each carrying a 32-bit checksum of its payload:
//
//	+------------------+----+------------------+----+
//	| 1020-byte payload| crc| 1020-byte payload| crc| ...
//	+------------------+----+------------------+----+
//
// Concatenating the payloads yields the file's logical address space,
// which is where packets (and the 32-byte file header at logical offset
// 0) live.  Readers verify each page's checksum the first time the page
// is touched and fail loudly on a mismatch, so the layers above only ever
// see integrity-checked bytes.
package pagefile

const (
	// PageSize is the physical size of one page.
	PageSize = 1024
	// PayloadSize is the number of logical bytes each page carries; the
	// remaining 4 bytes hold the page checksum.
	PayloadSize = PageSize - checksumSize

	checksumSize = 4
)

// Addressing selects which of the file's two address spaces an offset is
// expressed in.
type Addressing uint8

const (
	// Logical addresses index the concatenated page payloads, skipping
	// the interleaved checksum regions.
	Logical Addressing = iota
	// Physical addresses index the raw bytes of the file on disk.
	Physical
)

// LogicalToPhysical converts an offset in the logical address space to the
// physical file offset of the same byte.
func LogicalToPhysical(off uint64) uint64 {
	return off/PayloadSize*PageSize + off%PayloadSize
}

// PhysicalToLogical converts a physical file offset to a logical offset.
// A physical offset inside a checksum region maps to the end of that
// page's payload.
func PhysicalToLogical(off uint64) uint64 {
	rem := off % PageSize
	if rem > PayloadSize {
		rem = PayloadSize
	}
	return off/PageSize*PayloadSize + rem
}
