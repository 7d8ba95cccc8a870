package core

import "time"

// Deadline is a stored wake time checked once per tick.
// Nothing in the device sleeps; waits are expressed as deadlines
// that the main loop polls.
type Deadline struct {
	WakeTime time.Duration
	armed    bool
}

// Arm schedules the deadline d after now
func (dl *Deadline) Arm(now, d time.Duration) {
	dl.WakeTime = now + d
	dl.armed = true
}

// Armed reports whether the deadline is pending
func (dl *Deadline) Armed() bool {
	return dl.armed
}

// Due reports whether an armed deadline has passed
func (dl *Deadline) Due(now time.Duration) bool {
	return dl.armed && now >= dl.WakeTime
}

// Remaining returns the time left, zero if passed or not armed
func (dl *Deadline) Remaining(now time.Duration) time.Duration {
	if !dl.armed || now >= dl.WakeTime {
		return 0
	}
	return dl.WakeTime - now
}

// Clear disarms the deadline
func (dl *Deadline) Clear() {
	dl.armed = false
}
