// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cloudpack

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/tdaniels/cloudpack/packet"
	"github.com/tdaniels/cloudpack/pagefile"
)

// BuilderOption configures the Builder.
type BuilderOption func(*builderOptions)

type builderOptions struct {
	logger *logrus.Logger
}

// WithBuilderLogger sets an optional logger for the builder to use for
// progress updates.  If not provided, no logging output will be produced.
func WithBuilderLogger(logger *logrus.Logger) BuilderOption {
	return func(opts *builderOptions) {
		opts.logger = logger
	}
}

// Builder constructs an immutable container file from chunks of records.
// Chunks must be appended in record order; Finalize writes the chunk index
// and atomically moves the file into place.
type Builder struct {
	resultPath string
	f          *os.File
	w          *pagefile.Writer
	entries    []packet.IndexEntry
	logger     *logrus.Logger
}

// NewBuilder creates a Builder that will produce a container file at
// resultPath.  Building should happen once; the finished file is
// immutable.
func NewBuilder(resultPath string, opts ...BuilderOption) (*Builder, error) {
	var options builderOptions
	options.logger = logrus.New()
	options.logger.SetOutput(io.Discard)
	for _, opt := range opts {
		opt(&options)
	}

	// we want to write to a new file and do an atomic rename when we're done
	resultPath, err := filepath.Abs(resultPath)
	if err != nil {
		return nil, errors.Wrap(err, "filepath.Abs")
	}
	dir := filepath.Dir(resultPath)
	f, err := os.CreateTemp(dir, "cloudpack-builder.*.pcc")
	if err != nil {
		return nil, errors.Wrapf(err, "CreateTemp failed (may need permissions for dir %q)", dir)
	}
	w, err := pagefile.NewWriter(f)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, errors.Wrap(err, "pagefile.NewWriter")
	}
	return &Builder{
		resultPath: resultPath,
		f:          f,
		w:          w,
		logger:     options.logger,
	}, nil
}

// AppendChunk writes one chunk's bytestreams as a Data packet and records
// it in the chunk index under firstRecord, the number of the chunk's first
// record.  Record numbers must be strictly increasing across chunks.  It
// returns the physical offset the chunk was placed at.
func (b *Builder) AppendChunk(firstRecord uint64, streams [][]byte) (uint64, error) {
	if n := len(b.entries); n > 0 && firstRecord <= b.entries[n-1].RecordNumber {
		return 0, errors.Errorf("chunk record number %d not greater than previous %d", firstRecord, b.entries[n-1].RecordNumber)
	}

	buf, err := packet.MarshalData(0, streams)
	if err != nil {
		return 0, err
	}

	physical := pagefile.LogicalToPhysical(b.w.LogicalOffset())
	if _, err := b.w.Write(buf); err != nil {
		return 0, errors.Wrapf(err, "write %d-byte data packet", len(buf))
	}

	b.entries = append(b.entries, packet.IndexEntry{
		RecordNumber:   firstRecord,
		PhysicalOffset: physical,
	})
	b.logger.WithFields(logrus.Fields{
		"firstRecord": firstRecord,
		"offset":      physical,
		"streams":     len(streams),
	}).Debug("appended chunk")
	return physical, nil
}

// PadTo appends an Empty packet so the next packet starts at the given
// logical offset, which must be a multiple of 4 at least 4 bytes ahead.
func (b *Builder) PadTo(logicalOffset uint64) error {
	gap := int64(logicalOffset) - int64(b.w.LogicalOffset())
	if gap < 4 {
		return errors.Errorf("cannot pad backwards or by %d < 4 bytes", gap)
	}
	buf, err := packet.MarshalEmpty(int(gap))
	if err != nil {
		return err
	}
	_, err = b.w.Write(buf)
	return errors.Wrap(err, "write empty packet")
}

// Finalize writes the chunk index, completes the checksummed file, and
// atomically renames it into place.  It returns a read handle on the
// finished container.
func (b *Builder) Finalize() (*File, error) {
	if len(b.entries) == 0 {
		return nil, errors.New("container has no chunks")
	}

	root, err := b.writeIndex()
	if err != nil {
		_ = b.f.Close()
		_ = os.Remove(b.f.Name())
		return nil, err
	}
	b.w.SetIndexOffset(root)

	if err := b.w.Finish(); err != nil {
		_ = b.f.Close()
		_ = os.Remove(b.f.Name())
		return nil, errors.Wrap(err, "pagefile.Finish")
	}

	if err := b.f.Sync(); err != nil {
		return nil, errors.Wrap(err, "f.Sync")
	}
	if err := b.f.Close(); err != nil {
		return nil, errors.Wrap(err, "f.Close")
	}
	if err := os.Chmod(b.f.Name(), 0444); err != nil {
		return nil, errors.Wrap(err, "os.Chmod(0444)")
	}
	if err := os.Rename(b.f.Name(), b.resultPath); err != nil {
		return nil, errors.Wrap(err, "os.Rename")
	}
	b.f = nil

	b.logger.WithFields(logrus.Fields{
		"path":   b.resultPath,
		"chunks": len(b.entries),
	}).Info("finalized container")
	return Open(b.resultPath)
}

// writeIndex lays out the chunk index bottom-up: level-0 packets over the
// chunk entries, then one level per 2048-way fan-in until a single root
// remains.  It returns the root packet's physical offset.
func (b *Builder) writeIndex() (uint64, error) {
	cur := b.entries
	for level := uint8(0); ; level++ {
		if level > packet.MaxIndexLevel {
			return 0, errors.Errorf("chunk index exceeds %d levels", packet.MaxIndexLevel)
		}

		var parents []packet.IndexEntry
		for start := 0; start < len(cur); {
			end := start + packet.MaxIndexEntries
			if end > len(cur) {
				end = len(cur)
			}
			// a non-leaf packet needs at least two entries, so never
			// strand a single entry in the final group
			if level > 0 && len(cur)-start == packet.MaxIndexEntries+1 {
				end--
			}
			group := cur[start:end]

			buf, err := packet.MarshalIndex(level, group)
			if err != nil {
				return 0, err
			}
			physical := pagefile.LogicalToPhysical(b.w.LogicalOffset())
			if _, err := b.w.Write(buf); err != nil {
				return 0, errors.Wrapf(err, "write level-%d index packet", level)
			}
			parents = append(parents, packet.IndexEntry{
				RecordNumber:   group[0].RecordNumber,
				PhysicalOffset: physical,
			})
			start = end
		}

		if len(parents) == 1 {
			return parents[0].PhysicalOffset, nil
		}
		cur = parents
	}
}
