package ensemble

import (
	"testing"
	"time"

	"vstats-analyzer/internal/detectors"
	"vstats-analyzer/internal/metrics"
	"vstats-analyzer/internal/timeseries"
)

func seriesFrom(values []float64) *timeseries.View {
	points := make([]timeseries.Point, len(values))
	for i, v := range values {
		points[i] = timeseries.Point{T: int64(i), V: v}
	}
	view, err := timeseries.FromPoints(points)
	if err != nil {
		panic(err)
	}
	return view
}

// alwaysVote builds a detectors.Named that ignores the series and
// always returns the given vote, so the consensus math can be tested
// independently of the real statistical battery.
func alwaysVote(name string, vote detectors.Vote) detectors.Named {
	return detectors.Named{Name: name, Fn: func(*timeseries.View, detectors.Context) detectors.Vote {
		return vote
	}}
}

func fixedBattery(votes ...detectors.Vote) []detectors.Named {
	battery := make([]detectors.Named, len(votes))
	for i, v := range votes {
		battery[i] = alwaysVote(string(rune('a'+i)), v)
	}
	return battery
}

func basePreFilterConfig() detectors.PreFilterConfig {
	return detectors.PreFilterConfig{
		MinTolerableLength:  1,
		MaxTolerableBoredom: 100,
		BoredomSetSize:      1,
		StalePeriod:         86400 * time.Second,
	}
}

func TestEvaluateConsensus(t *testing.T) {
	v := seriesFrom([]float64{1, 2, 3, 4, 5, 6, 7, 8})

	t.Run("meets consensus", func(t *testing.T) {
		battery := fixedBattery(detectors.Anomalous, detectors.Anomalous, detectors.Anomalous, detectors.Normal, detectors.Normal)
		cfg := Config{Consensus: 3, PreFilter: basePreFilterConfig()}
		result, _, err := Evaluate(v, battery, cfg, detectors.Context{Now: 100}, metrics.New(), "m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !result.Final {
			t.Error("expected consensus to be reached")
		}
	})

	t.Run("falls short of consensus", func(t *testing.T) {
		battery := fixedBattery(detectors.Anomalous, detectors.Normal, detectors.Normal, detectors.Normal, detectors.Normal)
		cfg := Config{Consensus: 3, PreFilter: basePreFilterConfig()}
		result, _, err := Evaluate(v, battery, cfg, detectors.Context{Now: 100}, metrics.New(), "m")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if result.Final {
			t.Error("expected consensus not to be reached")
		}
	})
}

func TestEvaluateConsensusMonotonicity(t *testing.T) {
	v := seriesFrom([]float64{1, 2, 3, 4, 5})
	battery := fixedBattery(detectors.Anomalous, detectors.Anomalous, detectors.Anomalous, detectors.Normal, detectors.Normal)

	lowConsensus := Config{Consensus: 2, PreFilter: basePreFilterConfig()}
	highConsensus := Config{Consensus: 4, PreFilter: basePreFilterConfig()}

	lowResult, _, _ := Evaluate(v, battery, lowConsensus, detectors.Context{Now: 100}, metrics.New(), "m")
	highResult, _, _ := Evaluate(v, battery, highConsensus, detectors.Context{Now: 100}, metrics.New(), "m")

	if highResult.Final && !lowResult.Final {
		t.Error("increasing CONSENSUS must never turn a non-anomalous decision into an anomalous one")
	}
}

func TestEvaluateShortCircuitEquivalence(t *testing.T) {
	v := seriesFrom([]float64{1, 2, 3, 4, 5, 6})
	battery := fixedBattery(detectors.Normal, detectors.Normal, detectors.Normal, detectors.Anomalous, detectors.Anomalous)

	optimized := Config{Consensus: 5, RunOptimized: true, PreFilter: basePreFilterConfig()}
	unoptimized := Config{Consensus: 5, RunOptimized: false, PreFilter: basePreFilterConfig()}

	optResult, _, _ := Evaluate(v, battery, optimized, detectors.Context{Now: 100}, metrics.New(), "m")
	unoptResult, _, _ := Evaluate(v, battery, unoptimized, detectors.Context{Now: 100}, metrics.New(), "m")

	if optResult.Final != unoptResult.Final {
		t.Errorf("final decision diverged: optimized=%v unoptimized=%v", optResult.Final, unoptResult.Final)
	}
}

func TestEvaluatePreFilterPrecedence(t *testing.T) {
	v := seriesFrom([]float64{1, 2})
	battery := fixedBattery(detectors.Anomalous, detectors.Anomalous, detectors.Anomalous, detectors.Anomalous, detectors.Anomalous)
	cfg := Config{
		Consensus: 1,
		PreFilter: detectors.PreFilterConfig{
			MinTolerableLength: 10,
			StalePeriod:        86400 * time.Second,
		},
	}
	result, _, err := Evaluate(v, battery, cfg, detectors.Context{Now: 100}, metrics.New(), "m")
	if err != detectors.ErrTooShort {
		t.Fatalf("got err=%v, want ErrTooShort", err)
	}
	if result.Final {
		t.Error("a rejected series must never report Final=true regardless of detector votes")
	}
	if result.Votes != nil {
		t.Error("a rejected series must carry no vote vector")
	}
}

func TestEvaluateDeterminism(t *testing.T) {
	v := seriesFrom([]float64{10, 11, 9, 10, 12, 8, 50})
	battery := fixedBattery(detectors.Anomalous, detectors.Normal, detectors.Anomalous, detectors.Normal, detectors.Anomalous, detectors.Normal)
	cfg := Config{Consensus: 3, PreFilter: basePreFilterConfig()}
	ctx := detectors.Context{Now: 1000}

	first, _, _ := Evaluate(v, battery, cfg, ctx, metrics.New(), "m")
	second, _, _ := Evaluate(v, battery, cfg, ctx, metrics.New(), "m")

	if first.Final != second.Final {
		t.Error("identical inputs must produce identical decisions")
	}
	for i := range first.Votes {
		if first.Votes[i].Vote != second.Votes[i].Vote {
			t.Errorf("vote %d diverged across runs", i)
		}
	}
}

func TestRunDetectorRecoversFromPanic(t *testing.T) {
	panicking := detectors.Named{Name: "boom", Fn: func(*timeseries.View, detectors.Context) detectors.Vote {
		panic("simulated fault")
	}}
	v := seriesFrom([]float64{1, 2, 3})
	sink := metrics.New()
	vote := runDetector(panicking, v, detectors.Context{}, sink, "m")
	if vote != detectors.Undetermined {
		t.Errorf("got %v, want Undetermined after a recovered panic", vote)
	}
	_, faults := sink.Drain()
	if len(faults) != 1 {
		t.Fatalf("got %d faults, want 1", len(faults))
	}
	if faults[0].Detector != "boom" {
		t.Errorf("got detector %q, want boom", faults[0].Detector)
	}
}
