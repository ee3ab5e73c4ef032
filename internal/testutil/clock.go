package testutil

import (
	"sync"
	"time"
)

// Epoch is the first instant returned by a DeterministicClock.
var Epoch = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// DeterministicClock is a wall clock for tests that advances by a fixed step
// on every call to Now.
//
// Records stamped with it get byte-identical timestamps across runs, which
// keeps golden files stable.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu   sync.Mutex
	next time.Time
	step time.Duration
}

// NewDeterministicClock creates a clock whose first Now() returns Epoch and
// each following call returns one second later.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(Epoch, time.Second)
}

// NewDeterministicClockAt creates a clock starting at start and advancing by step.
func NewDeterministicClockAt(start time.Time, step time.Duration) *DeterministicClock {
	return &DeterministicClock{next: start.UTC(), step: step}
}

// Now returns the current instant and advances the clock.
func (c *DeterministicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.next
	c.next = c.next.Add(c.step)
	return t
}

// Peek returns the instant the next Now() call will return.
func (c *DeterministicClock) Peek() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.next
}

// Reset rewinds the clock to Epoch.
//
// Used for test reuse. After Reset(), the next call to Now() returns Epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.next = Epoch
}
