// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package cloudpack

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/tdaniels/cloudpack/packet"
	"github.com/tdaniels/cloudpack/pagefile"
)

// DefaultCacheSlots is the packet cache capacity used by Open and NewFile.
const DefaultCacheSlots = 32

// File is a read handle on a finished container: one checksummed pagefile
// reader plus one packet cache in front of it.  A File is not safe for
// concurrent use; see packet.Cache.
type File struct {
	r     *pagefile.Reader
	cache *packet.Cache
}

// Open memory-maps the container file at path.
func Open(path string) (*File, error) {
	r, err := pagefile.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "pagefile.Open(%s)", path)
	}
	return newFile(r)
}

// NewFile wraps an in-memory image of a container file.
func NewFile(data []byte) (*File, error) {
	r, err := pagefile.NewReader(data)
	if err != nil {
		return nil, err
	}
	return newFile(r)
}

func newFile(r *pagefile.Reader) (*File, error) {
	cache, err := packet.NewCache(r, DefaultCacheSlots)
	if err != nil {
		_ = r.Close()
		return nil, err
	}
	return &File{r: r, cache: cache}, nil
}

// Packet locks and returns the packet at the given logical offset.  The
// caller must release the lock before requesting another packet.
func (f *File) Packet(logicalOffset uint64) (packet.Packet, *packet.Lock, error) {
	return f.cache.Lock(logicalOffset)
}

// WithPacket runs fn on the packet at the given logical offset, holding
// the packet lock for exactly the duration of the call.  Views into the
// packet must not be retained past fn's return.
func (f *File) WithPacket(logicalOffset uint64, fn func(packet.Packet) error) error {
	pkt, lock, err := f.cache.Lock(logicalOffset)
	if err != nil {
		return err
	}
	defer lock.Release()
	return fn(pkt)
}

// FindChunk walks the chunk index and returns the physical offset of the
// Data packet whose chunk contains recordNumber.  Each index packet's lock
// is released before descending, honoring the cache's single-lock rule.
func (f *File) FindChunk(recordNumber uint64) (uint64, error) {
	physical := f.r.IndexOffset()
	if physical == 0 {
		return 0, errors.New("container has no chunk index")
	}

	// levels strictly decrease on the way down, so this terminates
	for hop := 0; hop <= packet.MaxIndexLevel; hop++ {
		var next uint64
		var level uint8
		err := f.WithPacket(pagefile.PhysicalToLogical(physical), func(pkt packet.Packet) error {
			ip, ok := pkt.(*packet.IndexPacket)
			if !ok {
				return errors.Errorf("expected index packet at physical offset %d, found type %d", physical, pkt.Type())
			}
			level = ip.Level()
			entries := ip.Entries()
			// the last entry whose first record is <= recordNumber
			i := sort.Search(len(entries), func(i int) bool {
				return entries[i].RecordNumber > recordNumber
			}) - 1
			if i < 0 {
				return errors.Errorf("record %d precedes first indexed record %d", recordNumber, entries[0].RecordNumber)
			}
			next = entries[i].PhysicalOffset
			return nil
		})
		if err != nil {
			return 0, err
		}
		if level == 0 {
			return next, nil
		}
		physical = next
	}
	return 0, errors.Errorf("chunk index deeper than %d levels", packet.MaxIndexLevel)
}

// LogicalLength returns the length of the container's logical address
// space.
func (f *File) LogicalLength() uint64 {
	return f.r.LogicalLength()
}

// Close releases the underlying file mapping.  Any outstanding packet
// lock or retained packet view is invalid afterwards.
func (f *File) Close() error {
	return f.r.Close()
}
