// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustMarshalData(t *testing.T, streams ...[]byte) []byte {
	t.Helper()
	buf, err := MarshalData(0, streams)
	require.NoError(t, err)
	return buf
}

func TestMarshalData_RoundTrip(t *testing.T) {
	streams := [][]byte{
		bytes.Repeat([]byte{0xAA}, 10),
		bytes.Repeat([]byte{0xBB}, 20),
	}
	buf := mustMarshalData(t, streams...)

	// 6-byte header + two 16-bit lengths + 30 payload bytes is exactly 40,
	// already a multiple of 4
	assert.Equal(t, 40, len(buf))
	assert.Equal(t, uint16(39), binary.LittleEndian.Uint16(buf[2:4]))

	pkt, err := Parse(buf)
	require.NoError(t, err)
	dp, ok := pkt.(*DataPacket)
	require.True(t, ok)

	assert.Equal(t, TypeData, dp.Type())
	assert.Equal(t, 40, dp.Length())
	assert.Equal(t, 2, dp.StreamCount())

	var got [][]byte
	for i := 0; i < dp.StreamCount(); i++ {
		s, err := dp.Bytestream(i)
		require.NoError(t, err)
		got = append(got, s)
	}
	assert.Equal(t, streams, got)

	// re-encoding the decoded packet reproduces the original bytes exactly
	again, err := MarshalData(dp.Flags(), got)
	require.NoError(t, err)
	assert.Equal(t, buf, again)
}

func TestBytestream_Extents(t *testing.T) {
	lengths := []int{3, 0, 17, 1}
	streams := make([][]byte, len(lengths))
	for i, n := range lengths {
		s := make([]byte, n)
		for j := range s {
			s[j] = byte(i + 1)
		}
		streams[i] = s
	}
	buf := mustMarshalData(t, streams...)

	pkt, err := Parse(buf)
	require.NoError(t, err)
	dp := pkt.(*DataPacket)

	preceding := 0
	for i, n := range lengths {
		s, err := dp.Bytestream(i)
		require.NoError(t, err)
		assert.Equal(t, streams[i], s)

		start := dataHeaderSize + 2*len(lengths) + preceding
		assert.Equal(t, buf[start:start+n], s)
		preceding += n
	}

	_, err = dp.Bytestream(len(lengths))
	assert.ErrorIs(t, err, ErrInternal)
	_, err = dp.Bytestream(-1)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestBytestream_ValidatorGap(t *testing.T) {
	// a hand-built packet whose stream lengths escaped validation must be
	// caught by the accessor's own bounds check
	buf := mustMarshalData(t, []byte{1, 2, 3, 4})
	dp := &DataPacket{streamCount: 1, raw: buf[:12]}
	binary.LittleEndian.PutUint16(buf[dataHeaderSize:], 60000)

	_, err := dp.Bytestream(0)
	assert.ErrorIs(t, err, ErrInternal)
}

func TestValidateData_Corruptions(t *testing.T) {
	// needed = 6 + 4 + 29 = 39, padded to 40 with one zero byte
	valid := mustMarshalData(t, bytes.Repeat([]byte{1}, 9), bytes.Repeat([]byte{2}, 20))
	require.Equal(t, 40, len(valid))
	require.NoError(t, validateData(valid))

	tests := []struct {
		name   string
		mutate func(buf []byte) []byte
	}{
		{"wrong type tag", func(buf []byte) []byte {
			buf[0] = TypeEmpty
			return buf
		}},
		{"length not multiple of 4", func(buf []byte) []byte {
			binary.LittleEndian.PutUint16(buf[2:4], 38-1)
			return buf
		}},
		{"length smaller than header", func(buf []byte) []byte {
			binary.LittleEndian.PutUint16(buf[2:4], 4-1)
			return buf
		}},
		{"length exceeds buffer", func(buf []byte) []byte {
			binary.LittleEndian.PutUint16(buf[2:4], 48-1)
			return buf
		}},
		{"zero bytestream count", func(buf []byte) []byte {
			binary.LittleEndian.PutUint16(buf[4:6], 0)
			return buf
		}},
		{"non-zero trailing padding", func(buf []byte) []byte {
			buf[39] = 0xFF
			return buf
		}},
		{"declared length outside slack", func(buf []byte) []byte {
			// grow the buffer so only the slack rule can fail
			buf = append(buf, 0, 0, 0, 0)
			binary.LittleEndian.PutUint16(buf[2:4], 44-1)
			return buf
		}},
		{"stream lengths overrun declared length", func(buf []byte) []byte {
			binary.LittleEndian.PutUint16(buf[dataHeaderSize:], 600)
			return buf
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := tt.mutate(append([]byte(nil), valid...))
			assert.ErrorIs(t, validateData(buf), ErrBadPacket)
		})
	}
}

func TestValidateData_SlackBoundary(t *testing.T) {
	// minimum declared length for streams of 10 and 20 bytes is exactly 40
	valid := mustMarshalData(t, make([]byte, 10), make([]byte, 20))
	require.Equal(t, uint16(39), binary.LittleEndian.Uint16(valid[2:4]))
	require.NoError(t, validateData(valid))

	// declared length 44 is 4 past the exact size: beyond the 3-byte slack
	grown := append(append([]byte(nil), valid...), 0, 0, 0, 0)
	binary.LittleEndian.PutUint16(grown[2:4], 44-1)
	assert.ErrorIs(t, validateData(grown), ErrBadPacket)
}

func TestMarshalData_Errors(t *testing.T) {
	_, err := MarshalData(0, nil)
	assert.ErrorIs(t, err, ErrBadPacket)

	_, err = MarshalData(0, [][]byte{make([]byte, 1<<16)})
	assert.ErrorIs(t, err, ErrBadPacket)

	// two maximum-length streams cannot fit in one packet
	_, err = MarshalData(0, [][]byte{make([]byte, (1<<16)-1), make([]byte, (1<<16)-1)})
	assert.ErrorIs(t, err, ErrBadPacket)
}

func TestMarshalData_MaxSize(t *testing.T) {
	// 6 + 2 + 65524 = 65532; padded stays 65532, under the 65536 cap
	buf := mustMarshalData(t, make([]byte, 65524))
	assert.Equal(t, 65532, len(buf))
	_, err := Parse(buf)
	assert.NoError(t, err)
}
