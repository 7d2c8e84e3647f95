// Package timeseries implements component A: a zero-copy ordered view
// over a decoded sample buffer. It never mutates the underlying slice
// and never re-sorts it -- ingestion is responsible for the
// non-decreasing-by-timestamp invariant spec §3 requires.
package timeseries

import (
	"errors"

	"vstats-analyzer/internal/codec"
)

// MalformedSeries is returned when a raw buffer fails to decode.
var MalformedSeries = errors.New("timeseries: malformed series")

// EmptySeries is returned when a decoded buffer has zero samples.
var EmptySeries = errors.New("timeseries: empty series")

// Point is one (t, v) sample as exposed by the view.
type Point struct {
	T int64
	V float64
}

// View is an ordered, read-only window over a metric's samples.
type View struct {
	points []Point
}

// New decodes raw and wraps it in a View. It fails with
// MalformedSeries on a decode error and EmptySeries on an empty
// (but well-formed) buffer.
func New(raw []byte) (*View, error) {
	samples, err := codec.DecodeSamples(raw)
	if err != nil {
		return nil, MalformedSeries
	}
	if len(samples) == 0 {
		return nil, EmptySeries
	}
	points := make([]Point, len(samples))
	for i, s := range samples {
		points[i] = Point{T: s.T, V: s.V}
	}
	return &View{points: points}, nil
}

// FromPoints wraps an already-decoded, already-validated point slice.
// Used by tests and by callers that already hold a []Point.
func FromPoints(points []Point) (*View, error) {
	if len(points) == 0 {
		return nil, EmptySeries
	}
	return &View{points: points}, nil
}

// Len returns the number of samples in the view.
func (v *View) Len() int {
	return len(v.points)
}

// At returns the sample at index i.
func (v *View) At(i int) Point {
	return v.points[i]
}

// Tail returns the most recent sample.
func (v *View) Tail() Point {
	return v.points[len(v.points)-1]
}

// TailN returns the last n samples (or all of them if n exceeds the
// series length). The returned slice aliases the view's backing
// array; callers must not mutate it.
func (v *View) TailN(n int) []Point {
	if n >= len(v.points) {
		return v.points
	}
	return v.points[len(v.points)-n:]
}

// Since returns the subsequence of points with T >= cutoff. Points are
// ordered, so this is a single binary-search-free scan from the front.
func (v *View) Since(cutoff int64) []Point {
	start := len(v.points)
	for i, p := range v.points {
		if p.T >= cutoff {
			start = i
			break
		}
	}
	return v.points[start:]
}

// Before returns the subsequence of points with T < cutoff.
func (v *View) Before(cutoff int64) []Point {
	end := 0
	for _, p := range v.points {
		if p.T >= cutoff {
			break
		}
		end++
	}
	return v.points[:end]
}

// Between returns the subsequence with lo <= T < hi.
func (v *View) Between(lo, hi int64) []Point {
	var out []Point
	for _, p := range v.points {
		if p.T >= lo && p.T < hi {
			out = append(out, p)
		}
	}
	return out
}

// Values returns the bare value sequence, for detectors that only
// care about the distribution and not the timestamps.
func (v *View) Values() []float64 {
	out := make([]float64, len(v.points))
	for i, p := range v.points {
		out[i] = p.V
	}
	return out
}

// Points returns the full backing slice. Callers must not mutate it.
func (v *View) Points() []Point {
	return v.points
}
