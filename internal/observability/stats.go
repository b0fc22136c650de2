package observability

import "sync/atomic"

// Stats holds the process-lifetime request counters served verbatim by the
// stats endpoint. Prometheus counters track the same events but cannot be
// read back as exact integers, so these are kept separately.
type Stats struct {
	requests atomic.Int64
	blocked  atomic.Int64
}

// Snapshot is the wire form of the counters.
type Snapshot struct {
	Requests int64 `json:"requests"`
	Blocked  int64 `json:"blocked"`
}

func NewStats() *Stats { return &Stats{} }

// RecordRequest counts one chat request entering the streaming phase.
func (s *Stats) RecordRequest() { s.requests.Add(1) }

// RecordBlocked counts one chat request rejected by the rate limiter.
func (s *Stats) RecordBlocked() { s.blocked.Add(1) }

func (s *Stats) Snapshot() Snapshot {
	return Snapshot{
		Requests: s.requests.Load(),
		Blocked:  s.blocked.Load(),
	}
}
