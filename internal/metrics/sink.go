// Package metrics implements the ensemble's observability hook (spec
// §4.C): per-detector invocation counts and timings, and a bounded
// ring buffer of recent detector faults. Spec §9 notes that a
// filesystem-backed "<tmpdir>/<app>.<detector>.{count,timings}"
// sink (the original's approach) can be replaced by an in-memory ring
// buffer drained by the supervisor, avoiding per-invocation filesystem
// writes on the hot path; this is that replacement, modeled on the
// teacher's DBWriter / AggBuffer accumulator (cmd/server/db.go) but
// serialized by a single mutex rather than a writer goroutine, since
// every call site is synchronous.
package metrics

import (
	"sync"
	"time"
)

// FaultRecord is one sampled detector fault, the in-memory analogue of
// the spec's "<tmpdir>/<app>.<pid>.<detector>.algorithm.error" file.
type FaultRecord struct {
	Detector string
	Metric   string
	Reason   string
	At       time.Time
}

// DetectorStats is the drained view of one detector's running totals.
type DetectorStats struct {
	Name        string
	Invocations uint64
	TotalTime   time.Duration
}

const faultRingSize = 256

// Sink accumulates per-detector counters and timings and a bounded
// ring of recent faults. All fields are protected by mu; call sites
// are never on a blocking I/O path, only in-memory bookkeeping.
type Sink struct {
	mu      sync.Mutex
	stats   map[string]*DetectorStats
	faults  []FaultRecord
	faultAt int
}

// New creates an empty Sink.
func New() *Sink {
	return &Sink{
		stats:  make(map[string]*DetectorStats),
		faults: make([]FaultRecord, 0, faultRingSize),
	}
}

// RecordInvocation appends one timing sample for a detector
// invocation, equivalent to one line in the spec's
// <app>.<detector>.timings file and one increment of its .count file.
func (s *Sink) RecordInvocation(detector string, elapsed time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.stats[detector]
	if !ok {
		st = &DetectorStats{Name: detector}
		s.stats[detector] = st
	}
	st.Invocations++
	st.TotalTime += elapsed
}

// RecordFault samples a detector fault into the bounded ring,
// overwriting the oldest entry once full -- "log-once-per-run" intent
// without per-invocation filesystem writes (spec §9).
func (s *Sink) RecordFault(detector, metric, reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := FaultRecord{Detector: detector, Metric: metric, Reason: reason, At: time.Now()}
	if len(s.faults) < faultRingSize {
		s.faults = append(s.faults, rec)
		return
	}
	s.faults[s.faultAt] = rec
	s.faultAt = (s.faultAt + 1) % faultRingSize
}

// Drain returns a snapshot of the per-detector stats and the
// currently buffered faults, then clears both -- the in-memory
// equivalent of the supervisor draining and truncating the tmp files.
func (s *Sink) Drain() (stats []DetectorStats, faults []FaultRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stats = make([]DetectorStats, 0, len(s.stats))
	for _, st := range s.stats {
		stats = append(stats, *st)
	}
	faults = append([]FaultRecord(nil), s.faults...)
	s.stats = make(map[string]*DetectorStats)
	s.faults = s.faults[:0]
	s.faultAt = 0
	return stats, faults
}
