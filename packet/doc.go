// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package packet implements the chunk-level wire formats of a cloudpack
// container and the read cache that mediates all physical packet reads.
//
// Point data is stored as a sequence of self-contained, length-prefixed
// packets inside the file's logical address space.  Every packet starts
// with the same 4-byte header and is one of three variants, discriminated
// by the leading type tag:
//
//	 0    1    2    3
//	+----+----+----+----+
//	|type|flag| lenM1   |   common header (all integers little-endian)
//	+----+----+----+----+
//
// The stored length is the declared logical length minus one, so a 16-bit
// field addresses lengths 1..65536.  Declared lengths are always a
// multiple of 4.
//
// A Data packet (type 1) holds the interleaved bytestream fragments for
// one chunk of records:
//
//	+----+----+----+----+----+----+
//	|type|flag| lenM1   | count   |
//	+----+----+----+----+----+----+
//	| count 16-bit stream lengths |
//	+-----------------------------+
//	| concatenated stream bytes   |
//	+-----------------------------+
//	| zero padding (slack <= 3)   |
//	+-----------------------------+
//
// An Index packet (type 0) is one node of the chunk index mapping record
// numbers to the physical offsets of the Data packets holding them:
//
//	+----+----+----+----+----+----+----+----+----+----+
//	|type|flag| lenM1   | count   |lvl | reserved x9 ->|
//	+----+----+----+----+----+----+----+----+----+----+
//	| count entries of (u64 recordNumber, u64 offset) |
//	+-------------------------------------------------+
//
// An Empty packet (type 2) is a 4-byte filler header used for alignment;
// its declared length may extend past the header with implicit zero
// padding.
//
// Parse and Validate are the only places in the library that interpret
// untrusted on-disk bytes as typed records; corruption is caught here,
// before it can propagate into higher-level readers.
package packet
