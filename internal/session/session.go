// Package session tracks which students have already triggered a
// user-facing notification during one attendance-taking camera session.
// The cache is process-local and transient: it decides what the UI shows,
// and never writes attendance records itself.
package session

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a continuously visible face stays silent
// after its last notification.
const DefaultCooldown = 10 * time.Second

// Notice classifies what, if anything, the UI should surface for a sighting.
type Notice int

const (
	// NoticeSuppressed means the student was notified recently; show nothing.
	NoticeSuppressed Notice = iota
	// NoticeMarked means this sighting created today's attendance record.
	NoticeMarked
	// NoticeAlreadyMarked means the student was marked earlier today,
	// outside this session.
	NoticeAlreadyMarked
	// NoticeDuplicatePunch means the student reappeared after the cooldown
	// without a new record being created.
	NoticeDuplicatePunch
)

func (n Notice) String() string {
	switch n {
	case NoticeMarked:
		return "marked"
	case NoticeAlreadyMarked:
		return "already_marked"
	case NoticeDuplicatePunch:
		return "duplicate_punch"
	default:
		return "suppressed"
	}
}

// Cache remembers the last notification time per student for one session.
type Cache struct {
	mu       sync.Mutex
	cooldown time.Duration
	lastSeen map[string]time.Time
	now      func() time.Time
}

// NewCache creates a cache; cooldown <= 0 selects DefaultCooldown.
func NewCache(cooldown time.Duration) *Cache {
	if cooldown <= 0 {
		cooldown = DefaultCooldown
	}
	return &Cache{
		cooldown: cooldown,
		lastSeen: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Observe registers a sighting of a student and returns the notice the UI
// should show. created reports whether the sighting produced a new
// attendance record (the tracker's decision, not ours).
//
// First sight in the session notifies; re-sights within the cooldown are
// suppressed; once the cooldown elapses, a renewed sighting surfaces as a
// duplicate punch unless it created a record. A sighting that created a
// record always notifies: a new day's record (session spanning midnight)
// must never be silenced by the previous day's cooldown.
func (c *Cache) Observe(studentID string, created bool) Notice {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	last, seen := c.lastSeen[studentID]
	if seen && now.Sub(last) < c.cooldown && !created {
		return NoticeSuppressed
	}
	c.lastSeen[studentID] = now

	switch {
	case created:
		return NoticeMarked
	case seen:
		return NoticeDuplicatePunch
	default:
		return NoticeAlreadyMarked
	}
}

// Reset forgets all sightings; called when the attendance view closes.
func (c *Cache) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastSeen = make(map[string]time.Time)
}
