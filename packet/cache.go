// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// File is the checksummed-file collaborator the cache reads packets
// through: positioned, exact-length reads in the file's logical address
// space.  *pagefile.Reader implements it; tests use in-memory fakes.
//
// The cache drives the file in strictly sequential seek/read pairs.
// Interleaving a seek from elsewhere between a cache seek and its read
// corrupts results, so all positioning on a shared File must be
// serialized around the cache's own read sequences.
type File interface {
	// SeekLogical positions the file at the given logical offset.
	SeekLogical(offset uint64) error
	// Read fills p completely or fails.
	Read(p []byte) error
}

// Cache is a fixed-capacity, offset-keyed, least-recently-used buffer pool
// serving decoded packets for logical file offsets.  Slot buffers are
// allocated once at construction and overwritten in place by eviction.
//
// Because a locked DataPacket is a direct view into a reusable slot, the
// cache allows at most one outstanding lock at a time; a second concurrent
// view would risk aliasing once eviction overwrites the slot.  A Cache is
// not safe for concurrent use without external mutual exclusion — Lock and
// Release denote logical slot reservation, not a concurrency primitive.
type Cache struct {
	f         File
	lockCount int
	useCount  uint64
	entries   []cacheEntry
}

type cacheEntry struct {
	// logicalOffset of the cached packet; 0 means the slot is empty or
	// mid-populate and must never match a lookup.
	logicalOffset uint64
	buf           []byte
	pkt           Packet
	lastUsed      uint64
}

// NewCache returns a cache with the given number of slots reading through
// f.  Every slot's buffer is sized for a maximum-length packet up front.
func NewCache(f File, slots int) (*Cache, error) {
	if slots < 1 {
		return nil, fmt.Errorf("%w: cache slots=%d", ErrInternal, slots)
	}
	c := &Cache{f: f, entries: make([]cacheEntry, slots)}
	for i := range c.entries {
		c.entries[i].buf = make([]byte, MaxPacketSize)
	}
	return c, nil
}

// Lock returns the validated, decoded packet at the given logical offset
// together with a lock token for the cache slot backing it.  The packet is
// valid until the token is released; no cache operation will touch the
// slot while the lock is outstanding.
//
// A cache hit performs no physical read.  A miss evicts the least recently
// used slot (lowest index on ties) and reads through the File.
func (c *Cache) Lock(logicalOffset uint64) (Packet, *Lock, error) {
	// Only one locked packet at a time.
	if c.lockCount > 0 {
		return nil, nil, fmt.Errorf("%w: lockCount=%d, a previous lock is still outstanding", ErrInternal, c.lockCount)
	}
	// Offset 0 is the empty-slot sentinel and always names the file
	// header, never a packet.
	if logicalOffset == 0 {
		return nil, nil, fmt.Errorf("%w: packetLogicalOffset=0", ErrInternal)
	}

	for i := range c.entries {
		if c.entries[i].logicalOffset == logicalOffset {
			c.useCount++
			c.entries[i].lastUsed = c.useCount
			c.lockCount++
			return c.entries[i].pkt, &Lock{cache: c, slot: i}, nil
		}
	}

	victim := 0
	oldest := c.entries[0].lastUsed
	for i := range c.entries {
		if c.entries[i].lastUsed < oldest {
			victim = i
			oldest = c.entries[i].lastUsed
		}
	}
	logrus.WithFields(logrus.Fields{
		"offset": logicalOffset,
		"slot":   victim,
	}).Debug("packet cache miss")

	if err := c.readPacket(victim, logicalOffset); err != nil {
		return nil, nil, err
	}

	c.lockCount++
	return c.entries[victim].pkt, &Lock{cache: c, slot: victim}, nil
}

// readPacket populates the slot with the packet at logicalOffset.  The
// slot's offset is cleared first and committed last, so a failed read or
// validation never leaves a corrupt slot looking cached.
func (c *Cache) readPacket(slot int, logicalOffset uint64) error {
	e := &c.entries[slot]
	e.logicalOffset = 0
	e.pkt = nil

	// Read just the common header first to learn the packet's length.
	if err := c.f.SeekLogical(logicalOffset); err != nil {
		return errors.Wrapf(err, "seek packet header at logical offset %d", logicalOffset)
	}
	if err := c.f.Read(e.buf[:CommonHeaderSize]); err != nil {
		return errors.Wrapf(err, "read packet header at logical offset %d", logicalOffset)
	}
	h, err := DecodeHeader(e.buf[:CommonHeaderSize])
	if err != nil {
		return err
	}
	if h.Length > MaxPacketSize {
		return fmt.Errorf("%w: packetLength=%d exceeds maximum %d", ErrBadPacket, h.Length, MaxPacketSize)
	}

	// Re-read the whole packet, header included; re-reading 4 bytes is
	// cheaper than partial-buffer bookkeeping.
	if err := c.f.SeekLogical(logicalOffset); err != nil {
		return errors.Wrapf(err, "seek packet at logical offset %d", logicalOffset)
	}
	if err := c.f.Read(e.buf[:h.Length]); err != nil {
		return errors.Wrapf(err, "read %d-byte packet at logical offset %d", h.Length, logicalOffset)
	}

	pkt, err := Parse(e.buf[:h.Length])
	if err != nil {
		return errors.Wrapf(err, "packet at logical offset %d", logicalOffset)
	}

	e.pkt = pkt
	e.logicalOffset = logicalOffset
	c.useCount++
	e.lastUsed = c.useCount
	return nil
}

// unlock releases the slot reservation taken by Lock.  Only a Lock token
// calls it.  The slot index is accepted for symmetry with Lock and future
// per-slot accounting; the current discipline tracks a single outstanding
// lock, so only the global count is checked.
func (c *Cache) unlock(slot int) error {
	if c.lockCount != 1 {
		return fmt.Errorf("%w: unlock of slot %d with lockCount=%d", ErrInternal, slot, c.lockCount)
	}
	c.lockCount--
	return nil
}
