// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"
)

// IndexEntry maps the first record number of a chunk to the physical file
// offset of the packet holding it.  In a level-0 packet the offset names a
// Data packet; above level 0 it names the next Index packet down.
type IndexEntry struct {
	RecordNumber   uint64
	PhysicalOffset uint64
}

// IndexPacket is one node of the chunk index.  Entries are decoded into
// plain values at parse time, so unlike a DataPacket the result does not
// alias the cache slot it was read from.
type IndexPacket struct {
	flags   byte
	length  int
	level   uint8
	entries []IndexEntry
}

func parseIndex(buf []byte) (*IndexPacket, error) {
	if err := validateIndex(buf); err != nil {
		return nil, err
	}
	h, _ := DecodeHeader(buf)
	count := int(binary.LittleEndian.Uint16(buf[4:6]))
	entries := make([]IndexEntry, count)
	for i := range entries {
		off := indexHeaderSize + indexEntrySize*i
		entries[i] = IndexEntry{
			RecordNumber:   binary.LittleEndian.Uint64(buf[off:]),
			PhysicalOffset: binary.LittleEndian.Uint64(buf[off+8:]),
		}
	}
	return &IndexPacket{
		flags:   h.Flags,
		length:  h.Length,
		level:   buf[6],
		entries: entries,
	}, nil
}

func validateIndex(buf []byte) error {
	h, err := DecodeHeader(buf)
	if err != nil {
		return err
	}
	if h.Type != TypeIndex {
		return fmt.Errorf("%w: packetType=%d, want %d (index)", ErrBadPacket, h.Type, TypeIndex)
	}
	if err := checkLength(h, indexHeaderSize, len(buf)); err != nil {
		return err
	}

	count := int(binary.LittleEndian.Uint16(buf[4:6]))
	if count == 0 {
		return fmt.Errorf("%w: entryCount=0", ErrBadPacket)
	}
	if count > MaxIndexEntries {
		return fmt.Errorf("%w: entryCount=%d exceeds %d", ErrBadPacket, count, MaxIndexEntries)
	}

	level := buf[6]
	if level > MaxIndexLevel {
		return fmt.Errorf("%w: indexLevel=%d exceeds %d", ErrBadPacket, level, MaxIndexLevel)
	}
	// A non-leaf node with a single entry has no reason to exist.
	if level > 0 && count < 2 {
		return fmt.Errorf("%w: indexLevel=%d with entryCount=%d", ErrBadPacket, level, count)
	}

	for i := 7; i < indexHeaderSize; i++ {
		if buf[i] != 0 {
			return fmt.Errorf("%w: non-zero reserved byte at offset %d", ErrBadPacket, i)
		}
	}

	needed := indexHeaderSize + indexEntrySize*count
	if needed > h.Length {
		return fmt.Errorf("%w: packetLength=%d too small for entryCount=%d (need %d)", ErrBadPacket, h.Length, count, needed)
	}

	// Entries must be strictly increasing in both fields.
	var prevRecord, prevOffset uint64
	for i := 0; i < count; i++ {
		off := indexHeaderSize + indexEntrySize*i
		record := binary.LittleEndian.Uint64(buf[off:])
		offset := binary.LittleEndian.Uint64(buf[off+8:])
		if i > 0 {
			if record <= prevRecord {
				return fmt.Errorf("%w: entry %d recordNumber=%d not greater than entry %d recordNumber=%d", ErrBadPacket, i, record, i-1, prevRecord)
			}
			if offset <= prevOffset {
				return fmt.Errorf("%w: entry %d physicalOffset=%d not greater than entry %d physicalOffset=%d", ErrBadPacket, i, offset, i-1, prevOffset)
			}
		}
		prevRecord, prevOffset = record, offset
	}

	for i := needed; i < h.Length; i++ {
		if buf[i] != 0 {
			return fmt.Errorf("%w: non-zero padding byte at offset %d", ErrBadPacket, i)
		}
	}
	return nil
}

// Type implements Packet.
func (p *IndexPacket) Type() byte { return TypeIndex }

// Length implements Packet.
func (p *IndexPacket) Length() int { return p.length }

// Flags returns the packet's flag bits.  No bits are currently assigned.
func (p *IndexPacket) Flags() byte { return p.flags }

// Level returns the packet's height in the chunk index: 0 for leaves.
func (p *IndexPacket) Level() uint8 { return p.level }

// EntryCount returns the number of entries in the packet.
func (p *IndexPacket) EntryCount() int { return len(p.entries) }

// Entries returns the decoded index entries, strictly increasing in both
// record number and physical offset.
func (p *IndexPacket) Entries() []IndexEntry { return p.entries }

// MarshalIndex encodes entries as an Index packet at the given level and
// validates the result before returning it.
func MarshalIndex(level uint8, entries []IndexEntry) ([]byte, error) {
	count := len(entries)
	if count == 0 || count > MaxIndexEntries {
		return nil, fmt.Errorf("%w: entryCount=%d outside [1, %d]", ErrBadPacket, count, MaxIndexEntries)
	}

	length := indexHeaderSize + indexEntrySize*count
	buf := make([]byte, length)
	buf[0] = TypeIndex
	binary.LittleEndian.PutUint16(buf[2:4], uint16(length-1))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(count))
	buf[6] = level
	for i, e := range entries {
		off := indexHeaderSize + indexEntrySize*i
		binary.LittleEndian.PutUint64(buf[off:], e.RecordNumber)
		binary.LittleEndian.PutUint64(buf[off+8:], e.PhysicalOffset)
	}

	if err := validateIndex(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
