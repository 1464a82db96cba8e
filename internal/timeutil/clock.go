// Package timeutil provides a testable abstraction over the monotonic time
// operations the replay pacing loop depends on.
package timeutil

import (
	"sync"
	"time"
)

// Clock abstracts monotonic time for the pacing loop. Production code uses
// RealClock; tests substitute MockClock so cadence logic runs instantly and
// deterministically.
type Clock interface {
	// Now returns the current time. Values carry Go's monotonic reading,
	// so subtraction is immune to wall-clock steps.
	Now() time.Time

	// Since returns the duration since t.
	Since(t time.Time) time.Duration

	// SleepUntil blocks until Now() is at or past target, retrying across
	// early wakeups. A target in the past returns immediately.
	SleepUntil(target time.Time)
}

// RealClock implements Clock using the standard time package.
type RealClock struct{}

// Now returns the current time.
func (RealClock) Now() time.Time { return time.Now() }

// Since returns the time elapsed since t.
func (RealClock) Since(t time.Time) time.Duration { return time.Since(t) }

// SleepUntil sleeps until target, re-sleeping if the timer fires early.
func (RealClock) SleepUntil(target time.Time) {
	for {
		d := time.Until(target)
		if d <= 0 {
			return
		}
		time.Sleep(d)
	}
}

// MockClock is a manually controlled clock for testing. SleepUntil advances
// the clock to the target instead of blocking, and every target is recorded
// so tests can assert on the pacing schedule.
type MockClock struct {
	mu      sync.Mutex
	now     time.Time
	targets []time.Time
}

// NewMockClock creates a MockClock set to the given time.
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{now: t}
}

// Now returns the mocked current time.
func (c *MockClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Since returns the duration since t on the mocked clock.
func (c *MockClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

// Advance moves the clock forward by d.
func (c *MockClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SleepUntil records the target and jumps the clock to it. Targets already
// in the past are recorded but do not move the clock backwards.
func (c *MockClock) SleepUntil(target time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targets = append(c.targets, target)
	if target.After(c.now) {
		c.now = target
	}
}

// SleepTargets returns a copy of every target passed to SleepUntil, in call
// order.
func (c *MockClock) SleepTargets() []time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]time.Time, len(c.targets))
	copy(out, c.targets)
	return out
}
