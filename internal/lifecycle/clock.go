package lifecycle

import (
	"sync"
	"time"
)

// Clock supplies transition timestamps.
type Clock interface {
	Now() time.Time
}

// MonotonicClock never returns an instant earlier than one it already returned,
// even if the wall clock steps backwards.
type MonotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewMonotonicClock wraps now; a nil now uses time.Now.
func NewMonotonicClock(now func() time.Time) *MonotonicClock {
	if now == nil {
		now = time.Now
	}
	return &MonotonicClock{now: now}
}

func (c *MonotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC()
	if t.Before(c.last) {
		return c.last
	}
	c.last = t
	return t
}
