// Package secondorder implements component D: the per-metric trigger
// history gate described in spec §4.D. It owns trigger_history.<m>
// exclusively -- no other component may read or write that key.
package secondorder

import (
	"context"
	"fmt"
	"math"

	"vstats-analyzer/internal/codec"
	"vstats-analyzer/internal/store"
)

const sameDataSuppressWindow = 300 // seconds, spec §4.D.2

// Filter is the strategy interface the ensemble's caller consults
// after a trigger, per spec §9's "optional second-order subsystem"
// design note: either this history-gated strategy or a pass-through
// that always returns true.
type Filter interface {
	IsAnomalouslyAnomalous(ctx context.Context, metric string, value float64, now int64) (bool, error)
}

// PassThrough is the strategy used when ENABLE_SECOND_ORDER is false:
// every trigger surfaces unchanged.
type PassThrough struct{}

func (PassThrough) IsAnomalouslyAnomalous(context.Context, string, float64, int64) (bool, error) {
	return true, nil
}

// HistoryGated is the real second-order filter, backed by the shared
// store's trigger_history.<metric> key.
type HistoryGated struct {
	Store store.Store
}

// IsAnomalouslyAnomalous implements the four-step contract of spec
// §4.D exactly.
func (h HistoryGated) IsAnomalouslyAnomalous(ctx context.Context, metric string, value float64, now int64) (bool, error) {
	key := "trigger_history." + metric

	raw, found, err := h.Store.Get(ctx, key)
	if err != nil {
		return false, fmt.Errorf("secondorder: load history for %s: %w", metric, err)
	}
	if !found {
		history := []codec.Trigger{{T: now, V: value}}
		if err := h.persist(ctx, key, history); err != nil {
			return false, err
		}
		return true, nil
	}

	history, err := codec.DecodeTriggers(raw)
	if err != nil {
		return false, fmt.Errorf("secondorder: decode history for %s: %w", metric, err)
	}
	if len(history) == 0 {
		history = []codec.Trigger{{T: now, V: value}}
		if err := h.persist(ctx, key, history); err != nil {
			return false, err
		}
		return true, nil
	}

	last := history[len(history)-1]
	if last.V == value && now-last.T <= sameDataSuppressWindow {
		return false, nil
	}

	history = append(history, codec.Trigger{T: now, V: value})
	if err := h.persist(ctx, key, history); err != nil {
		return false, err
	}

	intervals := make([]float64, 0, len(history)-1)
	for i := 0; i+1 < len(history); i++ {
		intervals = append(intervals, float64(history[i+1].T-history[i].T))
	}
	if len(intervals) < 2 {
		// A single interval gives an undefined (NaN) sample standard
		// deviation under pandas' default ddof=1, and "x > 3*NaN" is
		// always false -- so the original never surfaces off a
		// two-point history either.
		return false, nil
	}

	m := meanF(intervals)
	sd := stddevF(intervals)
	last_ := intervals[len(intervals)-1]
	return math.Abs(last_-m) > 3*sd, nil
}

func (h HistoryGated) persist(ctx context.Context, key string, history []codec.Trigger) error {
	encoded, err := codec.EncodeTriggers(history)
	if err != nil {
		return fmt.Errorf("secondorder: encode history for key %s: %w", key, err)
	}
	if err := h.Store.Set(ctx, key, encoded); err != nil {
		return fmt.Errorf("secondorder: persist history for key %s: %w", key, err)
	}
	return nil
}

func meanF(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v
	}
	return sum / float64(len(x))
}

func stddevF(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	m := meanF(x)
	var sumSq float64
	for _, v := range x {
		d := v - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(x)-1))
}
