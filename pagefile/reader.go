// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagefile

import (
	"encoding/binary"

	"github.com/dgryski/go-farm"
	"github.com/pkg/errors"

	"github.com/tdaniels/cloudpack/internal/bitset"
	"github.com/tdaniels/cloudpack/internal/mmap"
)

// Reader serves positioned, exact-length reads from a container file's
// logical address space, verifying each physical page's checksum the
// first time that page is touched.
//
// A Reader keeps one current position, set by Seek and advanced by Read.
// Callers that share a Reader must serialize complete seek/read sequences;
// the packet read cache depends on nothing repositioning the file between
// its seek and its read.
type Reader struct {
	data     []byte
	closer   func() error
	h        fileHeader
	verified *bitset.Bitset
	off      uint64 // current logical position
}

// Open memory-maps the container file at path.
func Open(path string) (*Reader, error) {
	m, err := mmap.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap.Open(%s)", path)
	}
	r, err := newReader(m.Data(), m.Close)
	if err != nil {
		_ = m.Close()
		return nil, err
	}
	return r, nil
}

// NewReader wraps an in-memory image of a container file.
func NewReader(data []byte) (*Reader, error) {
	return newReader(data, nil)
}

func newReader(data []byte, closer func() error) (*Reader, error) {
	if len(data) < PageSize {
		return nil, errors.Errorf("file too short: %d < one %d-byte page", len(data), PageSize)
	}
	if len(data)%PageSize != 0 {
		return nil, errors.Errorf("file size %d not a multiple of the %d-byte page size", len(data), PageSize)
	}

	pageCount := uint64(len(data)) / PageSize
	r := &Reader{
		data:     data,
		closer:   closer,
		verified: bitset.New(int64(pageCount)),
	}

	if err := r.verifyPage(0); err != nil {
		return nil, err
	}
	if err := r.h.unmarshalBytes(data[:fileHeaderSize]); err != nil {
		return nil, err
	}
	if r.h.logicalLength < fileHeaderSize || r.h.logicalLength > pageCount*PayloadSize {
		return nil, errors.Errorf("header logical length %d outside [%d, %d]", r.h.logicalLength, fileHeaderSize, pageCount*PayloadSize)
	}

	r.off = fileHeaderSize
	return r, nil
}

// LogicalLength returns the length of the file's logical address space.
func (r *Reader) LogicalLength() uint64 {
	return r.h.logicalLength
}

// IndexOffset returns the physical offset of the root chunk-index packet,
// or 0 if the file carries none.
func (r *Reader) IndexOffset() uint64 {
	return r.h.indexPhysical
}

// Seek positions the reader at the given offset in the chosen address
// space.  Seeking past the logical length is an error.
func (r *Reader) Seek(off uint64, a Addressing) error {
	if a == Physical {
		off = PhysicalToLogical(off)
	}
	if off > r.h.logicalLength {
		return errors.Errorf("seek to logical offset %d past end %d", off, r.h.logicalLength)
	}
	r.off = off
	return nil
}

// SeekLogical positions the reader at a logical offset.  It is the seek
// half of the packet cache's File interface.
func (r *Reader) SeekLogical(off uint64) error {
	return r.Seek(off, Logical)
}

// Read fills p completely from the current logical position, verifying
// the checksum of every page it touches.  On failure the reader's
// position is unchanged and p's contents are undefined.
func (r *Reader) Read(p []byte) error {
	if r.off+uint64(len(p)) > r.h.logicalLength {
		return errors.Errorf("read of %d bytes at logical offset %d past end %d", len(p), r.off, r.h.logicalLength)
	}

	off := r.off
	for n := 0; n < len(p); {
		page := off / PayloadSize
		if err := r.verifyPage(page); err != nil {
			return err
		}
		pageOff := off % PayloadSize
		start := page*PageSize + pageOff
		copied := copy(p[n:], r.data[start:page*PageSize+PayloadSize])
		n += copied
		off += uint64(copied)
	}
	r.off = off
	return nil
}

// verifyPage checks the page's checksum, remembering pages already
// verified so each page is hashed at most once per Reader.
func (r *Reader) verifyPage(page uint64) error {
	if r.verified.IsSet(int64(page)) {
		return nil
	}
	start := page * PageSize
	payload := r.data[start : start+PayloadSize]
	want := binary.LittleEndian.Uint32(r.data[start+PayloadSize : start+PageSize])
	got := uint32(farm.Hash64(payload))
	if got != want {
		return errors.Errorf("page %d checksum failed (%08x != %08x): file corrupted", page, want, got)
	}
	r.verified.Set(int64(page))
	return nil
}

// Close releases the underlying mapping, if any.
func (r *Reader) Close() error {
	r.data = nil
	if r.closer == nil {
		return nil
	}
	closer := r.closer
	r.closer = nil
	return closer()
}
