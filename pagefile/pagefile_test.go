// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagefile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/dgryski/go-farm"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safeBuffer is an in-memory FileWriter for exercising the writer without
// touching disk.
type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (s *safeBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]byte(nil), s.buf...)
}

func (s *safeBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

func (s *safeBuffer) WriteAt(p []byte, off int64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if int(off)+len(p) > len(s.buf) {
		return 0, errors.New("writeAt out of bounds")
	}
	return copy(s.buf[off:], p), nil
}

var _ FileWriter = (*safeBuffer)(nil)

func buildFile(t *testing.T, payload []byte) []byte {
	t.Helper()
	var fileBytes safeBuffer
	w, err := NewWriter(&fileBytes)
	require.NoError(t, err)
	if len(payload) > 0 {
		n, err := w.Write(payload)
		require.NoError(t, err)
		require.Equal(t, len(payload), n)
	}
	require.NoError(t, w.Finish())
	return fileBytes.Bytes()
}

func TestAddressConversions(t *testing.T) {
	assert.Equal(t, uint64(0), LogicalToPhysical(0))
	assert.Equal(t, uint64(1019), LogicalToPhysical(1019))
	assert.Equal(t, uint64(PageSize), LogicalToPhysical(PayloadSize))
	assert.Equal(t, uint64(PageSize+7), LogicalToPhysical(PayloadSize+7))

	assert.Equal(t, uint64(0), PhysicalToLogical(0))
	assert.Equal(t, uint64(PayloadSize), PhysicalToLogical(PageSize))
	// offsets inside a checksum region clamp to the end of the payload
	assert.Equal(t, uint64(PayloadSize), PhysicalToLogical(PayloadSize+1))
	assert.Equal(t, uint64(PayloadSize), PhysicalToLogical(PageSize-1))

	for _, off := range []uint64{0, 1, 1019, 1020, 5000, 1 << 30} {
		assert.Equal(t, off, PhysicalToLogical(LogicalToPhysical(off)), "offset %d", off)
	}
}

func TestWriter_RoundTrip(t *testing.T) {
	// three pages worth of logical bytes
	payload := make([]byte, 3000)
	for i := range payload {
		payload[i] = byte(i)
	}
	image := buildFile(t, payload)
	assert.Equal(t, 0, len(image)%PageSize)

	r, err := NewReader(image)
	require.NoError(t, err)
	assert.Equal(t, uint64(fileHeaderSize+len(payload)), r.LogicalLength())

	got := make([]byte, len(payload))
	require.NoError(t, r.Seek(fileHeaderSize, Logical))
	require.NoError(t, r.Read(got))
	assert.True(t, bytes.Equal(payload, got))

	// sequential reads continue from the current position
	require.NoError(t, r.Seek(fileHeaderSize, Logical))
	first, rest := make([]byte, 100), make([]byte, 2900)
	require.NoError(t, r.Read(first))
	require.NoError(t, r.Read(rest))
	assert.True(t, bytes.Equal(payload, append(first, rest...)))
}

func TestReader_PhysicalAddressing(t *testing.T) {
	payload := make([]byte, 2000)
	for i := range payload {
		payload[i] = byte(i * 7)
	}
	image := buildFile(t, payload)
	r, err := NewReader(image)
	require.NoError(t, err)

	logical := uint64(fileHeaderSize + 1500)
	want := make([]byte, 16)
	require.NoError(t, r.Seek(logical, Logical))
	require.NoError(t, r.Read(want))

	got := make([]byte, 16)
	require.NoError(t, r.Seek(LogicalToPhysical(logical), Physical))
	require.NoError(t, r.Read(got))
	assert.Equal(t, want, got)
}

func TestReader_ChecksumFailure(t *testing.T) {
	image := buildFile(t, make([]byte, 2000))

	// flip one payload byte in the second page
	image[PageSize+100] ^= 0xFF

	r, err := NewReader(image)
	require.NoError(t, err) // page 0 still verifies

	p := make([]byte, 1500)
	require.NoError(t, r.Seek(fileHeaderSize, Logical))
	err = r.Read(p)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "page 1 checksum")

	// a read confined to page 0 still works
	require.NoError(t, r.Seek(fileHeaderSize, Logical))
	assert.NoError(t, r.Read(make([]byte, 100)))
}

func TestReader_HeaderValidation(t *testing.T) {
	image := buildFile(t, make([]byte, 100))

	badMagic := append([]byte(nil), image...)
	badMagic[0] ^= 0xFF
	binary.LittleEndian.PutUint32(badMagic[PayloadSize:PageSize], uint32(farm.Hash64(badMagic[:PayloadSize])))
	_, err := NewReader(badMagic)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "magic")

	badVersion := append([]byte(nil), image...)
	binary.LittleEndian.PutUint32(badVersion[4:8], 99)
	binary.LittleEndian.PutUint32(badVersion[PayloadSize:PageSize], uint32(farm.Hash64(badVersion[:PayloadSize])))
	_, err = NewReader(badVersion)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "v99")

	badLength := append([]byte(nil), image...)
	binary.LittleEndian.PutUint64(badLength[8:16], 1<<40)
	binary.LittleEndian.PutUint32(badLength[PayloadSize:PageSize], uint32(farm.Hash64(badLength[:PayloadSize])))
	_, err = NewReader(badLength)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logical length")
}

func TestReader_SizeValidation(t *testing.T) {
	_, err := NewReader(nil)
	assert.Error(t, err)

	_, err = NewReader(make([]byte, PageSize-1))
	assert.Error(t, err)

	image := buildFile(t, make([]byte, 100))
	_, err = NewReader(image[:len(image)-1])
	assert.Error(t, err)
}

func TestReader_Bounds(t *testing.T) {
	image := buildFile(t, make([]byte, 100))
	r, err := NewReader(image)
	require.NoError(t, err)

	assert.Error(t, r.Seek(r.LogicalLength()+1, Logical))

	require.NoError(t, r.Seek(r.LogicalLength()-1, Logical))
	assert.Error(t, r.Read(make([]byte, 2)))
}

func TestWriter_IndexOffset(t *testing.T) {
	var fileBytes safeBuffer
	w, err := NewWriter(&fileBytes)
	require.NoError(t, err)
	_, err = w.Write(make([]byte, 64))
	require.NoError(t, err)
	w.SetIndexOffset(4242)
	require.NoError(t, w.Finish())

	r, err := NewReader(fileBytes.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(4242), r.IndexOffset())
}

func TestWriter_FinishIdempotent(t *testing.T) {
	var fileBytes safeBuffer
	w, err := NewWriter(&fileBytes)
	require.NoError(t, err)
	require.NoError(t, w.Finish())
	require.NoError(t, w.Finish())

	_, err = w.Write([]byte{1})
	assert.Error(t, err)

	r, err := NewReader(fileBytes.Bytes())
	require.NoError(t, err)
	assert.Equal(t, uint64(fileHeaderSize), r.LogicalLength())
}

func TestWriter_ExactPageBoundary(t *testing.T) {
	payload := make([]byte, 2*PayloadSize-fileHeaderSize)
	image := buildFile(t, payload)
	assert.Equal(t, 2*PageSize, len(image))

	r, err := NewReader(image)
	require.NoError(t, err)
	assert.Equal(t, uint64(2*PayloadSize), r.LogicalLength())

	require.NoError(t, r.Seek(fileHeaderSize, Logical))
	assert.NoError(t, r.Read(make([]byte, len(payload))))
}
