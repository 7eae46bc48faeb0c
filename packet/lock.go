// Copyright 2026 The cloudpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package packet

import (
	"github.com/sirupsen/logrus"
)

// Lock is a single-use token proving exclusive, time-bounded access to one
// cache slot's contents.  It is only constructed by Cache.Lock.  A Lock
// must not be copied; ownership may move, but two live references to the
// same token are a defect.  The cache that issued a Lock must outlive it.
type Lock struct {
	noCopy noCopy

	cache    *Cache
	slot     int
	released bool
}

// Release returns the slot to the cache.  It is idempotent, and it never
// propagates a failure: releasing a lock runs on cleanup paths, so an
// unlock-discipline error is logged rather than surfaced.
func (l *Lock) Release() {
	if l.released {
		return
	}
	l.released = true
	if err := l.cache.unlock(l.slot); err != nil {
		logrus.WithError(err).WithField("slot", l.slot).Warn("packet lock release failed")
	}
}

// noCopy triggers `go vet`'s copylocks check when a containing struct is
// copied by value.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
