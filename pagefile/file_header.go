// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package pagefile

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	magicHeader       = 0xC10DFACE
	fileFormatVersion = 1

	// fileHeaderSize is the size of the header at logical offset 0.
	// Packets start after it, so a packet's logical offset is never 0.
	fileHeaderSize = 32
)

// fileHeader sits at logical offset 0 of every container file.
//
//	 0    4    8         16        24        32
//	+----+----+---------+---------+---------+
//	|magi|vers| logical | index   | reserved|
//	|c   |ion | length  | physical|         |
//	+----+----+---------+---------+---------+
type fileHeader struct {
	magic         uint32
	formatVersion uint32
	logicalLength uint64
	indexPhysical uint64 // physical offset of the root chunk-index packet, 0 if none
}

func newFileHeader() *fileHeader {
	return &fileHeader{
		magic:         magicHeader,
		formatVersion: fileFormatVersion,
	}
}

func (h *fileHeader) marshal(buf []byte) {
	_ = buf[fileHeaderSize-1]
	binary.LittleEndian.PutUint32(buf[0:4], h.magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.formatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], h.logicalLength)
	binary.LittleEndian.PutUint64(buf[16:24], h.indexPhysical)
	for i := 24; i < fileHeaderSize; i++ {
		buf[i] = 0
	}
}

func (h *fileHeader) unmarshalBytes(buf []byte) error {
	if len(buf) < fileHeaderSize {
		return errors.Errorf("file header too short: %d < %d", len(buf), fileHeaderSize)
	}

	h.magic = binary.LittleEndian.Uint32(buf[0:4])
	if h.magic != magicHeader {
		return errors.Errorf("bad magic number (%x) -- not a cloudpack file or corrupted", h.magic)
	}

	h.formatVersion = binary.LittleEndian.Uint32(buf[4:8])
	if h.formatVersion != fileFormatVersion {
		return errors.Errorf("this version of the cloudpack library can only read v%d files; found v%d", fileFormatVersion, h.formatVersion)
	}

	h.logicalLength = binary.LittleEndian.Uint64(buf[8:16])
	h.indexPhysical = binary.LittleEndian.Uint64(buf[16:24])

	return nil
}
