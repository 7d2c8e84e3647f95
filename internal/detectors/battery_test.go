package detectors

import (
	"testing"
	"time"

	"vstats-analyzer/internal/timeseries"
)

func seriesFrom(values []float64, startT int64, step int64) *timeseries.View {
	points := make([]timeseries.Point, len(values))
	for i, v := range values {
		points[i] = timeseries.Point{T: startT + int64(i)*step, V: v}
	}
	v, err := timeseries.FromPoints(points)
	if err != nil {
		panic(err)
	}
	return v
}

func TestMedianAbsoluteDeviation(t *testing.T) {
	t.Run("flat series never triggers", func(t *testing.T) {
		values := make([]float64, 100)
		for i := range values {
			values[i] = 5.0
		}
		v := seriesFrom(values, 0, 1)
		if got := MedianAbsoluteDeviation(v, Context{}); got != Normal {
			t.Errorf("got %v, want Normal", got)
		}
	})

	t.Run("large deviation from median triggers", func(t *testing.T) {
		values := make([]float64, 500)
		for i := range values {
			if i%2 == 0 {
				values[i] = 1.0
			} else {
				values[i] = -1.0
			}
		}
		values[len(values)-1] = 100.0
		v := seriesFrom(values, 0, 1)
		if got := MedianAbsoluteDeviation(v, Context{}); got != Anomalous {
			t.Errorf("got %v, want Anomalous", got)
		}
	})
}

func TestGrubbsZeroSigma(t *testing.T) {
	values := make([]float64, 500)
	for i := range values {
		values[i] = 3.0
	}
	v := seriesFrom(values, 0, 1)
	if got := Grubbs(v, Context{}); got != Normal {
		t.Errorf("got %v, want Normal (zero sigma must not be Undetermined)", got)
	}
}

func TestKSTestInsufficientData(t *testing.T) {
	now := int64(10000)
	values := make([]float64, 5)
	for i := range values {
		values[i] = float64(i)
	}
	v := seriesFrom(values, now-300, 60)
	ctx := Context{Now: now}
	if got := KSTest(v, ctx); got != Normal {
		t.Errorf("got %v, want Normal with fewer than 20 points in each window", got)
	}
}

func TestMeanSubtractionCumulationShortSeries(t *testing.T) {
	v := seriesFrom([]float64{1.0}, 0, 1)
	if got := MeanSubtractionCumulation(v, Context{}); got != Undetermined {
		t.Errorf("got %v, want Undetermined for a single-point series", got)
	}
}

func TestFirstHourAverageNoHistory(t *testing.T) {
	now := int64(1000)
	v := seriesFrom([]float64{1, 2, 3}, now-120, 60)
	ctx := Context{Now: now, FullDuration: 86400 * time.Second}
	if got := FirstHourAverage(v, ctx); got != Undetermined {
		t.Errorf("got %v, want Undetermined when no samples precede the first-hour cutoff", got)
	}
}

func TestRunPreFiltersFlatlineRejection(t *testing.T) {
	values := make([]float64, 1000)
	for i := range values {
		values[i] = 42.0
	}
	v := seriesFrom(values, 0, 1)
	cfg := PreFilterConfig{
		MinTolerableLength:  1,
		MaxTolerableBoredom: 100,
		BoredomSetSize:      1,
		StalePeriod:         86400 * time.Second,
	}
	_, err := RunPreFilters(v, cfg, 999)
	if err != ErrBoring {
		t.Errorf("got %v, want ErrBoring", err)
	}
}

func TestRunPreFiltersStaleRejection(t *testing.T) {
	v := seriesFrom([]float64{1, 2, 3}, 0, 1)
	cfg := PreFilterConfig{
		MinTolerableLength: 1,
		StalePeriod:        100 * time.Second,
	}
	now := int64(100) + 100 + 1
	_, err := RunPreFilters(v, cfg, now)
	if err != ErrStale {
		t.Errorf("got %v, want ErrStale", err)
	}
}

func TestRunPreFiltersTooShort(t *testing.T) {
	v := seriesFrom([]float64{1, 2}, 0, 1)
	cfg := PreFilterConfig{
		MinTolerableLength: 10,
		StalePeriod:        86400 * time.Second,
	}
	_, err := RunPreFilters(v, cfg, 1)
	if err != ErrTooShort {
		t.Errorf("got %v, want ErrTooShort", err)
	}
}

func TestResolveUnknownAlgorithm(t *testing.T) {
	if _, err := Resolve([]string{"not_a_real_detector"}); err == nil {
		t.Error("expected an error for an unknown detector name")
	}
}

func TestResolveKnownAlgorithms(t *testing.T) {
	named, err := Resolve([]string{"median_absolute_deviation", "grubbs"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(named) != 2 {
		t.Fatalf("got %d detectors, want 2", len(named))
	}
	if named[0].Name != "median_absolute_deviation" || named[1].Name != "grubbs" {
		t.Errorf("resolved names out of order: %+v", named)
	}
}
