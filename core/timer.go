package core

import "time"

// Clock is the device time base, measured from boot.
// Everything in the device reads time through a Clock so tests can
// drive it by hand.
type Clock interface {
	Now() time.Duration
}

// WallClock measures real time since it was created
type WallClock struct {
	boot time.Time
}

// NewWallClock creates a clock starting at zero now
func NewWallClock() *WallClock {
	return &WallClock{boot: time.Now()}
}

// Now returns time since boot
func (c *WallClock) Now() time.Duration {
	return time.Since(c.boot)
}

// ManualClock only moves when told to (for testing/simulation)
type ManualClock struct {
	now time.Duration
}

// Now returns the current manual time
func (c *ManualClock) Now() time.Duration {
	return c.now
}

// Set sets the current time
func (c *ManualClock) Set(t time.Duration) {
	c.now = t
}

// Advance moves the clock forward by d
func (c *ManualClock) Advance(d time.Duration) {
	c.now += d
}

// Millis converts a millisecond count from the wire to a duration
func Millis(ms uint32) time.Duration {
	return time.Duration(ms) * time.Millisecond
}

// ToMillis converts a duration to whole milliseconds for the wire
func ToMillis(d time.Duration) uint32 {
	return uint32(d / time.Millisecond)
}
