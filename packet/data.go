// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"
)

// DataPacket is a leaf of the container holding the interleaved bytestream
// fragments for one chunk of records.  The packet does not interpret the
// bytes inside a stream; it only delivers each numbered stream's extent.
//
// A DataPacket returned by the read cache is a view into a reusable cache
// slot and is only valid while the lock it was returned with is held.
type DataPacket struct {
	flags       byte
	streamCount int
	raw         []byte // exactly the declared logical length
}

func parseData(buf []byte) (*DataPacket, error) {
	if err := validateData(buf); err != nil {
		return nil, err
	}
	h, _ := DecodeHeader(buf)
	return &DataPacket{
		flags:       h.Flags,
		streamCount: int(binary.LittleEndian.Uint16(buf[4:6])),
		raw:         buf[:h.Length],
	}, nil
}

func validateData(buf []byte) error {
	h, err := DecodeHeader(buf)
	if err != nil {
		return err
	}
	if h.Type != TypeData {
		return fmt.Errorf("%w: packetType=%d, want %d (data)", ErrBadPacket, h.Type, TypeData)
	}
	if err := checkLength(h, dataHeaderSize, len(buf)); err != nil {
		return err
	}

	count := int(binary.LittleEndian.Uint16(buf[4:6]))
	if count == 0 {
		return fmt.Errorf("%w: bytestreamCount=0", ErrBadPacket)
	}
	if dataHeaderSize+2*count > h.Length {
		return fmt.Errorf("%w: packetLength=%d too small for bytestreamCount=%d", ErrBadPacket, h.Length, count)
	}

	// The declared length must equal header + length array + stream bytes,
	// allowing only for the padding slack from rounding up to a multiple
	// of 4.
	total := 0
	for i := 0; i < count; i++ {
		total += int(binary.LittleEndian.Uint16(buf[dataHeaderSize+2*i:]))
	}
	needed := dataHeaderSize + 2*count + total
	if needed > h.Length || needed+dataLengthSlack < h.Length {
		return fmt.Errorf("%w: needed=%d inconsistent with packetLength=%d", ErrBadPacket, needed, h.Length)
	}

	for i := needed; i < h.Length; i++ {
		if buf[i] != 0 {
			return fmt.Errorf("%w: non-zero padding byte at offset %d", ErrBadPacket, i)
		}
	}
	return nil
}

// Type implements Packet.
func (p *DataPacket) Type() byte { return TypeData }

// Length implements Packet.
func (p *DataPacket) Length() int { return len(p.raw) }

// Flags returns the packet's flag bits.  No bits are currently assigned.
func (p *DataPacket) Flags() byte { return p.flags }

// StreamCount returns the number of bytestreams multiplexed in the packet.
func (p *DataPacket) StreamCount() int { return p.streamCount }

// streamLength returns the declared length of stream i from the dense
// 16-bit length array that follows the fixed header.
func (p *DataPacket) streamLength(i int) int {
	return int(binary.LittleEndian.Uint16(p.raw[dataHeaderSize+2*i:]))
}

// Bytestream returns the bytes of stream i as a bounds-checked view into
// the packet.  An out-of-range i, or an extent past the declared length,
// is an internal-consistency error — validation already bounded the
// stream lengths, so the latter indicates a validator gap rather than
// malformed input.
func (p *DataPacket) Bytestream(i int) ([]byte, error) {
	if i < 0 || i >= p.streamCount {
		return nil, fmt.Errorf("%w: bytestream %d out of range (count %d)", ErrInternal, i, p.streamCount)
	}

	preceding := 0
	for j := 0; j < i; j++ {
		preceding += p.streamLength(j)
	}
	start := dataHeaderSize + 2*p.streamCount + preceding
	end := start + p.streamLength(i)
	if end > len(p.raw) {
		return nil, fmt.Errorf("%w: bytestream %d extent [%d:%d] exceeds packetLength=%d", ErrInternal, i, start, end, len(p.raw))
	}
	return p.raw[start:end:end], nil
}

// MarshalData encodes the given streams as a Data packet, zero-padded to a
// multiple of 4, and validates the result before returning it.
func MarshalData(flags byte, streams [][]byte) ([]byte, error) {
	count := len(streams)
	if count == 0 {
		return nil, fmt.Errorf("%w: bytestreamCount=0", ErrBadPacket)
	}
	if count > (1<<16)-1 {
		return nil, fmt.Errorf("%w: bytestreamCount=%d exceeds %d", ErrBadPacket, count, (1<<16)-1)
	}

	needed := dataHeaderSize + 2*count
	for i, s := range streams {
		if len(s) > (1<<16)-1 {
			return nil, fmt.Errorf("%w: bytestream %d length %d exceeds %d", ErrBadPacket, i, len(s), (1<<16)-1)
		}
		needed += len(s)
	}
	length := (needed + 3) &^ 3
	if length > MaxPacketSize {
		return nil, fmt.Errorf("%w: packetLength=%d exceeds maximum %d", ErrBadPacket, length, MaxPacketSize)
	}

	buf := make([]byte, length)
	buf[0] = TypeData
	buf[1] = flags
	binary.LittleEndian.PutUint16(buf[2:4], uint16(length-1))
	binary.LittleEndian.PutUint16(buf[4:6], uint16(count))
	for i, s := range streams {
		binary.LittleEndian.PutUint16(buf[dataHeaderSize+2*i:], uint16(len(s)))
	}
	off := dataHeaderSize + 2*count
	for _, s := range streams {
		off += copy(buf[off:], s)
	}

	if err := validateData(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
