package detectors

import "fmt"

// Registry replaces Python's string-keyed reflection (the teacher's
// ALGORITHMS list looked functions up via globals()[name]) with a
// statically built name -> Fn table, per spec §9 "Dynamic dispatch by
// detector name". Unknown names fail fast at startup instead of at
// evaluation time.
var registry = map[string]Fn{
	"median_absolute_deviation":   MedianAbsoluteDeviation,
	"grubbs":                      Grubbs,
	"first_hour_average":          FirstHourAverage,
	"stddev_from_average":         StddevFromAverage,
	"stddev_from_moving_average":  StddevFromMovingAverage,
	"mean_subtraction_cumulation": MeanSubtractionCumulation,
	"least_squares":               LeastSquares,
	"histogram_bins":              HistogramBins,
	"ks_test":                     KSTest,
}

// Named is one resolved battery member: its declared name and the
// function invoked under that name.
type Named struct {
	Name string
	Fn   Fn
}

// Resolve looks up each name in the battery's registry, in order,
// returning an error naming the first unknown detector it finds.
func Resolve(names []string) ([]Named, error) {
	out := make([]Named, 0, len(names))
	for _, name := range names {
		fn, ok := registry[name]
		if !ok {
			return nil, fmt.Errorf("detectors: unknown algorithm %q", name)
		}
		out = append(out, Named{Name: name, Fn: fn})
	}
	return out, nil
}
