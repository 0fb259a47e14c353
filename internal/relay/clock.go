package relay

import (
	"sync/atomic"
	"time"
)

// Clock produces epoch-millisecond timestamps that never go backwards.
//
// A wall-clock step back (NTP correction, manual change) repeats the last
// issued value until real time catches up.
type Clock struct {
	now  func() time.Time
	last atomic.Int64
}

// NewClock returns a Clock reading from now, or time.Now when now is nil.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Millis returns the current time in epoch milliseconds, clamped to be no
// earlier than any value previously returned. Safe for concurrent use.
func (c *Clock) Millis() int64 {
	ms := c.now().UnixMilli()
	for {
		last := c.last.Load()
		if ms <= last {
			return last
		}
		if c.last.CompareAndSwap(last, ms) {
			return ms
		}
	}
}
