package relay

import "sync/atomic"

// Forward outcomes, used as metric tag values.
const (
	OutcomeForwarded = "forwarded"
	OutcomeSkipped   = "skipped"
	OutcomeFailed    = "failed"
	OutcomeDropped   = "dropped"
)

// Stats counts relay outcomes. The zero value is ready to use.
type Stats struct {
	received  atomic.Uint64
	forwarded atomic.Uint64
	skipped   atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// StatsSnapshot is a point-in-time copy of Stats.
type StatsSnapshot struct {
	Received  uint64 `json:"received"`
	Forwarded uint64 `json:"forwarded"`
	Skipped   uint64 `json:"skipped"`
	Dropped   uint64 `json:"dropped"`
	Failed    uint64 `json:"failed"`
}

// Snapshot returns the current counter values.
func (s *Stats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Received:  s.received.Load(),
		Forwarded: s.forwarded.Load(),
		Skipped:   s.skipped.Load(),
		Dropped:   s.dropped.Load(),
		Failed:    s.failed.Load(),
	}
}

func (s *Stats) record(outcome string) {
	switch outcome {
	case OutcomeForwarded:
		s.forwarded.Add(1)
	case OutcomeSkipped:
		s.skipped.Add(1)
	case OutcomeDropped:
		s.dropped.Add(1)
	case OutcomeFailed:
		s.failed.Add(1)
	}
}
