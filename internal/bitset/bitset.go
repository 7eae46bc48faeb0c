// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package bitset provides a compact []bool replacement, used to remember
// which pages of a container file have already had their checksums
// verified.
package bitset

// Bitset is an in-memory bitmap that is conceptually similar to []bool,
// but more memory efficient.  Out-of-range offsets are ignored by Set and
// read as unset.
type Bitset struct {
	words  []uint64
	length int64
}

// New returns a bitset holding length bits, all unset.
func New(length int64) *Bitset {
	return &Bitset{
		words:  make([]uint64, (length+63)/64),
		length: length,
	}
}

// Set sets the bit at position off to 1.
func (b *Bitset) Set(off int64) {
	if off < 0 || off >= b.length {
		return
	}
	b.words[off/64] |= 1 << (uint64(off) % 64)
}

// IsSet reports whether the bit at position off is 1.
func (b *Bitset) IsSet(off int64) bool {
	if off < 0 || off >= b.length {
		return false
	}
	return b.words[off/64]&(1<<(uint64(off)%64)) != 0
}
