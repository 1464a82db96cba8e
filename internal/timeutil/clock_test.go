package timeutil

import (
	"testing"
	"time"
)

func TestRealClockSleepUntilPast(t *testing.T) {
	var c RealClock
	start := c.Now()
	c.SleepUntil(start.Add(-time.Hour))
	if c.Since(start) > 100*time.Millisecond {
		t.Error("SleepUntil with past target blocked")
	}
}

func TestMockClockAdvance(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	c.Advance(500 * time.Millisecond)
	if got := c.Since(base); got != 500*time.Millisecond {
		t.Errorf("Since = %v, want 500ms", got)
	}
}

func TestMockClockSleepUntil(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(base)

	t1 := base.Add(10 * time.Millisecond)
	t2 := base.Add(20 * time.Millisecond)
	c.SleepUntil(t1)
	c.SleepUntil(t2)
	c.SleepUntil(base) // past target must not rewind

	if !c.Now().Equal(t2) {
		t.Errorf("Now = %v, want %v", c.Now(), t2)
	}
	targets := c.SleepTargets()
	if len(targets) != 3 || !targets[0].Equal(t1) || !targets[1].Equal(t2) {
		t.Errorf("unexpected targets %v", targets)
	}
}
