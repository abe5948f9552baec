package scenario

import (
	"sync"
	"time"
)

// Clock is the time source a world's engine reads. advance steps move it
// forward.
type Clock interface {
	Now() time.Time
	Advance(d time.Duration)
}

// ManualClock only moves when advanced.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}
