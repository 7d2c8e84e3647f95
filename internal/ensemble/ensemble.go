// Package ensemble implements component C: the consensus evaluator
// that runs the detector battery in declared order, applies the
// k-of-N consensus rule, and short-circuits once consensus is no
// longer reachable (spec §4.C).
package ensemble

import (
	"time"

	"vstats-analyzer/internal/detectors"
	"vstats-analyzer/internal/metrics"
	"vstats-analyzer/internal/timeseries"
)

// VoteRecord is one detector's contribution to an evaluation, kept
// distinct from a plain bool so callers can tell a short-circuited
// "false" (never run) from a detector that actually ran and voted
// false or undetermined -- spec §9's open question about vote-vector
// consumers needing to know which slots were short-circuited.
type VoteRecord struct {
	Detector      string
	Vote          detectors.Vote
	ShortCircuited bool
}

// Result is the spec's EnsembleResult: the final decision, the full
// vote vector, and the tail value that decision was computed against.
type Result struct {
	Final     bool
	Votes     []VoteRecord
	TailValue float64
}

// Config bundles the consensus parameters and knobs the evaluator
// needs beyond the battery itself.
type Config struct {
	Consensus    int
	RunOptimized bool
	PreFilter    detectors.PreFilterConfig
}

// Evaluate runs the full spec §4.C procedure. A non-nil error is
// always one of detectors.ErrTooShort / ErrStale / ErrBoring -- a
// declined sample, not a failure -- in which case Result.Final is
// false and Votes is nil, matching "(false, [], tail_value)" from
// spec §7's propagation policy. staleSoft reports the independent
// alert_on_stale_metrics soft flag.
func Evaluate(v *timeseries.View, battery []detectors.Named, cfg Config, ctx detectors.Context, sink *metrics.Sink, metricName string) (Result, bool, error) {
	staleSoft, err := detectors.RunPreFilters(v, cfg.PreFilter, ctx.Now)
	if err != nil {
		return Result{Final: false, TailValue: v.Tail().V}, staleSoft, err
	}

	n := len(battery)
	maxFalseCount := n - cfg.Consensus + 1
	falseCount := 0
	consensusPossible := true

	votes := make([]VoteRecord, n)
	for i, d := range battery {
		if !consensusPossible {
			votes[i] = VoteRecord{Detector: d.Name, Vote: detectors.Normal, ShortCircuited: true}
			continue
		}

		vote := runDetector(d, v, ctx, sink, metricName)
		votes[i] = VoteRecord{Detector: d.Name, Vote: vote}

		// undetermined counts as false for consensus purposes, but is
		// recorded distinctly in the vote vector (spec §3, §9).
		if vote != detectors.Anomalous {
			falseCount++
		}

		if cfg.RunOptimized && falseCount >= maxFalseCount {
			consensusPossible = false
		}
	}

	falseVotes := 0
	for _, vr := range votes {
		if vr.Vote != detectors.Anomalous {
			falseVotes++
		}
	}

	final := falseVotes <= n-cfg.Consensus
	return Result{Final: final, Votes: votes, TailValue: v.Tail().V}, staleSoft, nil
}

// runDetector invokes one battery member, recovering from a panic and
// turning it into an Undetermined vote plus a sampled fault record --
// spec §7 "if a detector throws/panics, its vote is undetermined".
func runDetector(d detectors.Named, v *timeseries.View, ctx detectors.Context, sink *metrics.Sink, metricName string) (vote detectors.Vote) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			vote = detectors.Undetermined
			if sink != nil {
				sink.RecordFault(d.Name, metricName, panicReason(r))
			}
		}
		if sink != nil {
			sink.RecordInvocation(d.Name, time.Since(start))
		}
	}()
	vote = d.Fn(v, ctx)
	if vote == detectors.Undetermined && sink != nil {
		sink.RecordFault(d.Name, metricName, "undetermined")
	}
	return vote
}

func panicReason(r interface{}) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	return "panic"
}
