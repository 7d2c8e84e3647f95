package detectors

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// mean and stddev delegate to gonum/stat, which (like pandas' default
// ddof=1) computes the sample standard deviation with Bessel's
// correction when no weights are given.
func mean(x []float64) float64 {
	return stat.Mean(x, nil)
}

func stddev(x []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	return stat.StdDev(x, nil)
}

// median matches pandas' Series.median(): average of the two central
// values on an even-length series, exact middle value on odd length.
// gonum's stat.Quantile uses interpolation schemes tuned for arbitrary
// p and doesn't reduce to this exact rule, so it is computed by hand.
func median(x []float64) float64 {
	n := len(x)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), x...)
	sort.Float64s(sorted)
	mid := n / 2
	if n%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// grubbsCriticalValue computes the two-sided Grubbs critical value at
// significance alpha = 0.05/(2n) for a series of length n, per spec
// §4.B.2: G = ((n-1)/sqrt(n)) * sqrt(t^2 / (n-2+t^2)) where t is the
// upper 0.05/(2n) critical value of the Student-t distribution with
// n-2 degrees of freedom.
func grubbsCriticalValue(n int) float64 {
	alpha := 0.05 / (2 * float64(n))
	td := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(n - 2)}
	t := td.Quantile(1 - alpha)
	t2 := t * t
	return ((float64(n) - 1) / math.Sqrt(float64(n))) * math.Sqrt(t2/(float64(n-2)+t2))
}

// ewma computes pandas.Series.ewm(com=com, adjust=True, ignore_na=False,
// min_periods=0).mean() and the matching unbiased .std(bias=False),
// returning parallel slices the same length as x.
//
// With adjust=True the mean at index i is a weighted average of all
// points seen so far with weights (1-alpha)^(i-j), normalized by the
// sum of those weights -- this is what makes the early samples (where
// the window hasn't "filled up") behave sensibly instead of being
// biased toward zero, which is what a naive recursive EWMA would do.
func ewma(x []float64, com float64) (means, stdevs []float64) {
	n := len(x)
	means = make([]float64, n)
	stdevs = make([]float64, n)
	alpha := 1 / (1 + com)
	oneMinusAlpha := 1 - alpha

	var sumW, sumWX, sumWX2 float64
	for i := 0; i < n; i++ {
		// Decay every earlier weight by (1-alpha) and give the newest
		// point weight 1.
		sumW = sumW*oneMinusAlpha + 1
		sumWX = sumWX*oneMinusAlpha + x[i]
		sumWX2 = sumWX2*oneMinusAlpha + x[i]*x[i]

		m := sumWX / sumW
		means[i] = m

		if i == 0 {
			stdevs[i] = 0
			continue
		}
		// Bias-corrected weighted variance, matching pandas' bias=False
		// exponential-weighted variance formula.
		variance := (sumWX2/sumW - m*m)
		biasCorrection := (sumW * sumW) / (sumW*sumW - sumWOfSquares(alpha, i))
		v := variance * biasCorrection
		if v < 0 || math.IsNaN(v) {
			v = 0
		}
		stdevs[i] = math.Sqrt(v)
	}
	return means, stdevs
}

// sumWOfSquares returns sum(w_j^2) for j=0..i with w_j = (1-alpha)^j,
// the denominator correction pandas applies for the unbiased
// exponentially-weighted variance estimator.
func sumWOfSquares(alpha float64, i int) float64 {
	oneMinusAlpha := 1 - alpha
	var sum float64
	w := 1.0
	for j := 0; j <= i; j++ {
		if j > 0 {
			w *= oneMinusAlpha
		}
		sum += w * w
	}
	return sum
}

// leastSquaresFit fits y = m*x + c by ordinary least squares.
func leastSquaresFit(x, y []float64) (m, c float64) {
	n := float64(len(x))
	var sumX, sumY, sumXY, sumX2 float64
	for i := range x {
		sumX += x[i]
		sumY += y[i]
		sumXY += x[i] * y[i]
		sumX2 += x[i] * x[i]
	}
	denom := n*sumX2 - sumX*sumX
	if denom == 0 {
		return 0, sumY / n
	}
	m = (n*sumXY - sumX*sumY) / denom
	c = (sumY - m*sumX) / n
	return m, c
}

// histogram bins series into `bins` equi-width bins over [min, max]
// and returns the bin edges (len = bins+1) and per-bin counts.
func histogram(x []float64, bins int) (edges []float64, counts []int) {
	lo, hi := x[0], x[0]
	for _, v := range x {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	edges = make([]float64, bins+1)
	width := (hi - lo) / float64(bins)
	if width == 0 {
		width = 1
	}
	for i := range edges {
		edges[i] = lo + float64(i)*width
	}
	counts = make([]int, bins)
	for _, v := range x {
		idx := int((v - lo) / width)
		if idx >= bins {
			idx = bins - 1
		}
		if idx < 0 {
			idx = 0
		}
		counts[idx]++
	}
	return edges, counts
}
