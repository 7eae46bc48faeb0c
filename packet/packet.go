// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Packet type tags, stored in the first byte of every packet.
const (
	TypeIndex byte = 0
	TypeData  byte = 1
	TypeEmpty byte = 2
)

const (
	// MaxPacketSize is the largest physical size of any packet.  A Data
	// packet's 16-bit length-minus-one encoding addresses exactly this
	// many bytes, and cache slot buffers are allocated at this size.
	MaxPacketSize = 64 * 1024

	// MaxIndexEntries is the fixed entry capacity of an Index packet.
	MaxIndexEntries = 2048

	// MaxIndexLevel bounds the height of the chunk index: (5+1) levels of
	// 11-bit fanout cover 66 bits of chunk numbers, more than can exist.
	MaxIndexLevel = 5

	// CommonHeaderSize is the length of the header shared by all variants.
	CommonHeaderSize = 4

	dataHeaderSize  = 6
	indexHeaderSize = 16
	emptyHeaderSize = 4

	indexEntrySize = 16

	// Marshalers pad a Data packet out to a multiple of 4, so the declared
	// length may exceed the exact header+payload size by at most 3 bytes.
	dataLengthSlack = 3
)

var (
	// ErrBadPacket reports a structural rule violated by packet bytes read
	// from (or about to be written to) storage.  It is never repaired.
	ErrBadPacket = errors.New("bad packet")

	// ErrInternal reports a precondition violated by the library's caller
	// or by logic inside the library: a programming defect, not bad data.
	ErrInternal = errors.New("internal error")
)

// Header holds the 4 leading bytes shared by every packet variant.  For
// Empty packets the Flags byte is a reserved field that must be zero.
type Header struct {
	Type   byte
	Flags  byte
	Length int // declared logical length: stored lengthMinus1 + 1
}

// DecodeHeader decodes the common header from the front of buf.
func DecodeHeader(buf []byte) (Header, error) {
	if len(buf) < CommonHeaderSize {
		return Header{}, fmt.Errorf("%w: truncated header: %d bytes < %d", ErrBadPacket, len(buf), CommonHeaderSize)
	}
	return Header{
		Type:   buf[0],
		Flags:  buf[1],
		Length: int(binary.LittleEndian.Uint16(buf[2:4])) + 1,
	}, nil
}

// Packet is a decoded wire packet: one of *DataPacket, *IndexPacket or
// *EmptyPacket.
type Packet interface {
	// Type returns the packet's type tag.
	Type() byte
	// Length returns the declared logical length in bytes.
	Length() int
}

// Parse decodes and validates the packet at the front of buf.  It decodes
// the common header first, then dispatches to the variant named by the
// type tag.  An unrecognized tag is an internal-consistency error: the
// checksummed layer below should never deliver an arbitrary tag byte, so
// reaching one means either corruption it failed to catch or a defect in
// the caller.
func Parse(buf []byte) (Packet, error) {
	h, err := DecodeHeader(buf)
	if err != nil {
		return nil, err
	}
	switch h.Type {
	case TypeData:
		return parseData(buf)
	case TypeIndex:
		return parseIndex(buf)
	case TypeEmpty:
		return parseEmpty(buf)
	default:
		return nil, fmt.Errorf("%w: unrecognized packet type %d", ErrInternal, h.Type)
	}
}

// Validate checks the structure of the packet at the front of buf without
// decoding it.  It is pure and is called both after a physical read and
// before a physical write.
func Validate(buf []byte) error {
	h, err := DecodeHeader(buf)
	if err != nil {
		return err
	}
	switch h.Type {
	case TypeData:
		return validateData(buf)
	case TypeIndex:
		return validateIndex(buf)
	case TypeEmpty:
		return validateEmpty(buf)
	default:
		return fmt.Errorf("%w: unrecognized packet type %d", ErrInternal, h.Type)
	}
}

// checkLength enforces the declared-length rules common to all variants:
// at least the variant's header size, a multiple of 4, and no larger than
// the containing buffer.
func checkLength(h Header, headerSize, bufLen int) error {
	if h.Length < headerSize {
		return fmt.Errorf("%w: packetLength=%d smaller than header size %d", ErrBadPacket, h.Length, headerSize)
	}
	if h.Length%4 != 0 {
		return fmt.Errorf("%w: packetLength=%d not a multiple of 4", ErrBadPacket, h.Length)
	}
	if bufLen > 0 && h.Length > bufLen {
		return fmt.Errorf("%w: packetLength=%d exceeds buffer length %d", ErrBadPacket, h.Length, bufLen)
	}
	return nil
}
