// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagefile

import (
	"encoding/binary"
	"io"
	"sync/atomic"

	"github.com/dgryski/go-farm"
	"github.com/pkg/errors"
)

// FileWriter is usually an *os.File, but specified as an interface for
// easier testing.
type FileWriter interface {
	io.Writer
	io.WriterAt
}

// Writer streams logical bytes into a container file, checksumming each
// page as it fills.  Finish zero-pads the final page and patches the file
// header, so the header's logical length and index offset are only
// trustworthy in finished files.
type Writer struct {
	f             FileWriter
	page          [PageSize]byte
	fill          int // payload bytes buffered in page
	pagesOut      uint64
	logicalOff    uint64
	firstPage     [PageSize]byte // retained for the header patch in Finish
	indexPhysical uint64
	finished      atomic.Bool
}

// NewWriter starts a container file on f by writing the file header into
// the logical stream.
func NewWriter(f FileWriter) (*Writer, error) {
	w := &Writer{f: f}

	var headerBuf [fileHeaderSize]byte
	newFileHeader().marshal(headerBuf[:])
	if _, err := w.Write(headerBuf[:]); err != nil {
		return nil, errors.Wrap(err, "write file header")
	}
	return w, nil
}

// LogicalOffset returns the logical offset the next Write will land at.
func (w *Writer) LogicalOffset() uint64 {
	return w.logicalOff
}

// SetIndexOffset records the physical offset of the root chunk-index
// packet; Finish patches it into the file header.
func (w *Writer) SetIndexOffset(physical uint64) {
	w.indexPhysical = physical
}

// Write appends p to the logical stream.
func (w *Writer) Write(p []byte) (int, error) {
	if w.finished.Load() {
		return 0, errors.New("write to finished pagefile")
	}

	written := 0
	for len(p) > 0 {
		n := copy(w.page[w.fill:PayloadSize], p)
		w.fill += n
		p = p[n:]
		written += n
		if w.fill == PayloadSize {
			if err := w.flushPage(); err != nil {
				return written, err
			}
		}
	}
	w.logicalOff += uint64(written)
	return written, nil
}

// flushPage checksums the buffered payload and writes the full page out.
func (w *Writer) flushPage() error {
	payload := w.page[:PayloadSize]
	binary.LittleEndian.PutUint32(w.page[PayloadSize:], uint32(farm.Hash64(payload)))

	if w.pagesOut == 0 {
		w.firstPage = w.page
	}
	if _, err := w.f.Write(w.page[:]); err != nil {
		return errors.Wrapf(err, "write page %d", w.pagesOut)
	}
	w.pagesOut++
	w.fill = 0
	w.page = [PageSize]byte{}
	return nil
}

// Finish completes the file: it zero-pads and flushes the final partial
// page, then rewrites the first page with the final header (logical
// length, root index offset) and a fresh checksum.  Finishing more than
// once is a no-op.
func (w *Writer) Finish() error {
	if w.finished.Swap(true) {
		return nil
	}

	if w.fill > 0 {
		// page buffer past fill is already zero
		w.fill = PayloadSize
		if err := w.flushPage(); err != nil {
			return err
		}
	}

	h := newFileHeader()
	h.logicalLength = w.logicalOff
	h.indexPhysical = w.indexPhysical
	h.marshal(w.firstPage[:fileHeaderSize])
	binary.LittleEndian.PutUint32(w.firstPage[PayloadSize:], uint32(farm.Hash64(w.firstPage[:PayloadSize])))

	if _, err := w.f.WriteAt(w.firstPage[:], 0); err != nil {
		return errors.Wrap(err, "rewrite header page")
	}
	return nil
}
