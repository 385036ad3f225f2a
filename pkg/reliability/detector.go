// Package reliability implements AS4 reception awareness, currently
// duplicate detection over a sliding retention window.
package reliability

import (
	"sync"
	"time"
)

// DefaultRetention is how long seen message IDs are remembered when the
// PMode leg does not set a window.
const DefaultRetention = 10 * time.Minute

type seenKey struct {
	messageID string
	profileID string
	pmodeID   string
}

// Detector remembers recently seen message IDs. Detection is scoped per
// profile and PMode, so the same message ID arriving for two different
// PModes is not a duplicate.
type Detector struct {
	mu        sync.Mutex
	seen      map[seenKey]time.Time
	retention time.Duration
	now       func() time.Time
}

// NewDetector creates a Detector with the given retention window. A zero
// or negative retention falls back to DefaultRetention.
func NewDetector(retention time.Duration) *Detector {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Detector{
		seen:      make(map[seenKey]time.Time),
		retention: retention,
		now:       time.Now,
	}
}

// RegisterAndCheck records the message ID and reports whether it was
// already seen within the retention window. Check and registration happen
// under one lock, so two racing deliveries of the same ID agree on a
// single first arrival.
func (d *Detector) RegisterAndCheck(messageID, profileID, pmodeID string) bool {
	key := seenKey{messageID: messageID, profileID: profileID, pmodeID: pmodeID}
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	d.expireLocked(now)

	if _, dup := d.seen[key]; dup {
		return true
	}
	d.seen[key] = now
	return false
}

// Len returns the number of remembered message IDs.
func (d *Detector) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

func (d *Detector) expireLocked(now time.Time) {
	cutoff := now.Add(-d.retention)
	for key, at := range d.seen {
		if at.Before(cutoff) {
			delete(d.seen, key)
		}
	}
}
