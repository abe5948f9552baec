package service

import (
	"sync"
	"time"
)

// wallClock follows real time plus an offset that replayed advance steps
// accumulate.
type wallClock struct {
	mu     sync.RWMutex
	offset time.Duration
	now    func() time.Time
}

func newWallClock() *wallClock {
	return &wallClock{now: time.Now}
}

func (c *wallClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now().Add(c.offset)
}

func (c *wallClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.offset += d
	c.mu.Unlock()
}
