package minibatch

import (
	"time"

	"k8s.io/utils/clock"
)

// Trigger decides when the open bundle closes: after maxCount rows or once
// interval has elapsed since its first row, whichever comes first. A zero
// maxCount or interval disables that condition.
type Trigger struct {
	maxCount int
	interval time.Duration
	clock    clock.PassiveClock
	count    int
	openedAt time.Time
}

// NewTrigger returns a Trigger reading time from clk.
func NewTrigger(maxCount int, interval time.Duration, clk clock.PassiveClock) *Trigger {
	return &Trigger{
		maxCount: maxCount,
		interval: interval,
		clock:    clk,
	}
}

// OnElement registers one buffered row and reports whether the bundle must be flushed.
func (t *Trigger) OnElement() bool {
	if t.count == 0 {
		t.openedAt = t.clock.Now()
	}
	t.count++
	if t.maxCount > 0 && t.count >= t.maxCount {
		return true
	}
	return t.elapsed()
}

// OnTick reports whether the open bundle has been open for longer than the interval.
func (t *Trigger) OnTick() bool {
	if t.count == 0 {
		return false
	}
	return t.elapsed()
}

func (t *Trigger) elapsed() bool {
	return t.interval > 0 && t.clock.Since(t.openedAt) >= t.interval
}

// Reset starts a new bundle.
func (t *Trigger) Reset() {
	t.count = 0
	t.openedAt = time.Time{}
}

// Count returns the rows registered since the last Reset.
func (t *Trigger) Count() int {
	return t.count
}
