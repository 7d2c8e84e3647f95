package detectors

import (
	"errors"
	"time"

	"vstats-analyzer/internal/timeseries"
)

// Reject is the category of error a pre-filter raises; it is a
// declined sample, never a failure (spec §7 "Reject").
var (
	ErrTooShort = errors.New("detectors: series shorter than MIN_TOLERABLE_LENGTH")
	ErrStale    = errors.New("detectors: series tail older than STALE_PERIOD")
	ErrBoring   = errors.New("detectors: series is flat over the boredom window")
)

// PreFilterConfig carries the thresholds the three pre-filters need.
type PreFilterConfig struct {
	MinTolerableLength  int
	MaxTolerableBoredom int
	BoredomSetSize      int
	StalePeriod         time.Duration
	AlertOnStalePeriod  time.Duration
	AlertOnStale        bool
}

// RunPreFilters applies the three pre-filters in the order spec §4.B
// lists them. now is the evaluation wall-clock time in epoch seconds.
// staleSoft reports whether the soft alert_on_stale_metrics flag
// should be set (tail age past ALERT_ON_STALE_PERIOD but not yet past
// STALE_PERIOD) -- it is independent of the hard reject below it.
func RunPreFilters(v *timeseries.View, cfg PreFilterConfig, now int64) (staleSoft bool, err error) {
	if cfg.AlertOnStale {
		age := now - v.Tail().T
		if age >= int64(cfg.AlertOnStalePeriod/time.Second) && age < int64(cfg.StalePeriod/time.Second) {
			staleSoft = true
		}
	}

	if v.Len() < cfg.MinTolerableLength {
		return staleSoft, ErrTooShort
	}
	if now-v.Tail().T > int64(cfg.StalePeriod/time.Second) {
		return staleSoft, ErrStale
	}
	if isBoring(v, cfg.MaxTolerableBoredom, cfg.BoredomSetSize) {
		return staleSoft, ErrBoring
	}
	return staleSoft, nil
}

func isBoring(v *timeseries.View, maxTolerableBoredom, boredomSetSize int) bool {
	window := v.TailN(maxTolerableBoredom)
	distinct := make(map[float64]struct{}, len(window))
	for _, p := range window {
		distinct[p.V] = struct{}{}
	}
	return len(distinct) == boredomSetSize
}
