// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"encoding/binary"
	"fmt"
)

// EmptyPacket is a filler packet used to pad and align the packet section
// of a container file.  It carries no payload semantics: its declared
// length may extend past the 4-byte header with implicit zero padding.
type EmptyPacket struct {
	length int
}

func parseEmpty(buf []byte) (*EmptyPacket, error) {
	if err := validateEmpty(buf); err != nil {
		return nil, err
	}
	h, _ := DecodeHeader(buf)
	return &EmptyPacket{length: h.Length}, nil
}

func validateEmpty(buf []byte) error {
	h, err := DecodeHeader(buf)
	if err != nil {
		return err
	}
	if h.Type != TypeEmpty {
		return fmt.Errorf("%w: packetType=%d, want %d (empty)", ErrBadPacket, h.Type, TypeEmpty)
	}
	// The second header byte is a reserved field for this variant.
	if h.Flags != 0 {
		return fmt.Errorf("%w: non-zero reserved byte %d", ErrBadPacket, h.Flags)
	}
	return checkLength(h, emptyHeaderSize, len(buf))
}

// Type implements Packet.
func (p *EmptyPacket) Type() byte { return TypeEmpty }

// Length implements Packet.
func (p *EmptyPacket) Length() int { return p.length }

// MarshalEmpty encodes an Empty packet with the given declared length,
// which must be a multiple of 4 in [4, MaxPacketSize].
func MarshalEmpty(length int) ([]byte, error) {
	if length < emptyHeaderSize || length > MaxPacketSize || length%4 != 0 {
		return nil, fmt.Errorf("%w: packetLength=%d invalid for empty packet", ErrBadPacket, length)
	}
	buf := make([]byte, length)
	buf[0] = TypeEmpty
	binary.LittleEndian.PutUint16(buf[2:4], uint16(length-1))

	if err := validateEmpty(buf); err != nil {
		return nil, err
	}
	return buf, nil
}
