// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides a minimal read-only memory mapping of a whole
// file, advised for the random access pattern of packet reads.
package mmap

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// ReaderAt is a read-only memory mapping of a file's entire contents.
type ReaderAt struct {
	data []byte
}

// Open maps the file at path read-only.  The file must be non-empty.
func Open(path string) (*ReaderAt, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "os.Open(%s)", path)
	}
	defer func() {
		// the mapping outlives the descriptor
		_ = f.Close()
	}()

	stats, err := f.Stat()
	if err != nil {
		return nil, errors.Wrap(err, "f.Stat")
	}
	size := stats.Size()
	if size <= 0 {
		return nil, errors.Errorf("cannot map empty file %s", path)
	}
	if size != int64(int(size)) {
		return nil, errors.Errorf("file %s too large to map", path)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, errors.Wrapf(err, "mmap %s", path)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, errors.Wrap(err, "madvise")
	}

	return &ReaderAt{data: data}, nil
}

// Data returns the mapped bytes.  They are invalid after Close.
func (r *ReaderAt) Data() []byte {
	return r.data
}

// Len returns the size of the mapping.
func (r *ReaderAt) Len() int {
	return len(r.data)
}

// Close unmaps the file.  It is safe to call more than once.
func (r *ReaderAt) Close() error {
	if r.data == nil {
		return nil
	}
	data := r.data
	r.data = nil
	return unix.Munmap(data)
}
