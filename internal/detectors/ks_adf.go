package detectors

import (
	"math"
	"sort"
)

// twoSampleKS computes the two-sample Kolmogorov-Smirnov statistic D
// and its asymptotic p-value, matching scipy.stats.ks_2samp's default
// (asymptotic, two-sided) behavior closely enough for the §4.B.9
// threshold check (p < 0.05 and d > 0.5).
func twoSampleKS(a, b []float64) (d, p float64) {
	sa := append([]float64(nil), a...)
	sb := append([]float64(nil), b...)
	sort.Float64s(sa)
	sort.Float64s(sb)

	all := make([]float64, 0, len(sa)+len(sb))
	all = append(all, sa...)
	all = append(all, sb...)
	sort.Float64s(all)

	var maxDiff float64
	for _, v := range all {
		fa := empiricalCDF(sa, v)
		fb := empiricalCDF(sb, v)
		diff := math.Abs(fa - fb)
		if diff > maxDiff {
			maxDiff = diff
		}
	}

	n1, n2 := float64(len(sa)), float64(len(sb))
	en := math.Sqrt(n1 * n2 / (n1 + n2))
	p = ksAsymptoticP((en + 0.12 + 0.11/en) * maxDiff)
	return maxDiff, p
}

func empiricalCDF(sorted []float64, x float64) float64 {
	idx := sort.SearchFloat64s(sorted, x+1e-12)
	return float64(idx) / float64(len(sorted))
}

// ksAsymptoticP evaluates the Kolmogorov distribution's survival
// function via the standard alternating-series expansion
// (Marsaglia/Stephens), the same expression scipy uses internally for
// the asymptotic two-sided KS p-value.
func ksAsymptoticP(lambda float64) float64 {
	if lambda < 0.2 {
		return 1
	}
	var sum float64
	for k := 1; k <= 100; k++ {
		term := 2 * math.Pow(-1, float64(k-1)) * math.Exp(-2*float64(k*k)*lambda*lambda)
		sum += term
		if math.Abs(term) < 1e-10 {
			break
		}
	}
	if sum < 0 {
		sum = 0
	}
	if sum > 1 {
		sum = 1
	}
	return sum
}

// adfCriticalTau holds the Dickey-Fuller critical tau statistics for
// the constant-only ("c") regression, from the standard Dickey-Fuller
// table (Fuller 1976 / Davidson & MacKinnon). Used to approximate a
// p-value by linear interpolation in tau space: an exact MacKinnon
// response-surface p-value needs a response-surface regression this
// core does not carry (see DESIGN.md).
var adfCriticalTau = []struct {
	p   float64
	tau float64
}{
	{0.01, -3.43}, {0.025, -3.12}, {0.05, -2.86}, {0.10, -2.57},
	{0.50, -0.83}, {0.90, 0.85}, {0.95, 1.28}, {0.99, 1.99},
}

// adfPValue interpolates the approximate ADF p-value for a tau
// statistic under the "c" (constant, no trend) regression.
func adfPValue(tau float64) float64 {
	table := adfCriticalTau
	if tau <= table[0].tau {
		return table[0].p
	}
	if tau >= table[len(table)-1].tau {
		return table[len(table)-1].p
	}
	for i := 1; i < len(table); i++ {
		if tau <= table[i].tau {
			lo, hi := table[i-1], table[i]
			frac := (tau - lo.tau) / (hi.tau - lo.tau)
			return lo.p + frac*(hi.p-lo.p)
		}
	}
	return 1
}

// augmentedDickeyFuller runs the ADF test with `lag` lagged
// difference terms and a constant, per spec §4.B.9 (sm.tsa.stattools.
// adfuller(reference, 10), default regression='c'). It fits
//   Δy_t = c + γ·y_{t-1} + Σ_{i=1..lag} δ_i·Δy_{t-i} + ε_t
// by OLS and returns the t-statistic of γ̂ and its approximate
// p-value (see adfPValue).
func augmentedDickeyFuller(series []float64, lag int) (tau, pValue float64, ok bool) {
	n := len(series)
	if n < lag+3 {
		return 0, 1, false
	}
	diff := make([]float64, n-1)
	for i := 1; i < n; i++ {
		diff[i-1] = series[i] - series[i-1]
	}

	// Row i (0-based) of the regression corresponds to Δy at original
	// index i+lag+1, i.e. diff[i+lag].
	rows := n - 1 - lag
	if rows < lag+2 {
		return 0, 1, false
	}

	cols := 2 + lag // const, y_{t-1}, lag diffs
	X := make([][]float64, rows)
	y := make([]float64, rows)
	for r := 0; r < rows; r++ {
		row := make([]float64, cols)
		row[0] = 1
		row[1] = series[r+lag]
		for l := 0; l < lag; l++ {
			row[2+l] = diff[r+lag-1-l]
		}
		X[r] = row
		y[r] = diff[r+lag]
	}

	beta, seBeta, ok2 := olsWithStdErr(X, y)
	if !ok2 {
		return 0, 1, false
	}
	gamma := beta[1]
	se := seBeta[1]
	if se == 0 {
		return 0, 1, false
	}
	tau = gamma / se
	return tau, adfPValue(tau), true
}

// olsWithStdErr solves the normal equations X'Xβ = X'y via
// Gauss-Jordan elimination and returns β together with the standard
// error of each coefficient under homoskedastic Gaussian errors.
func olsWithStdErr(X [][]float64, y []float64) (beta, se []float64, ok bool) {
	n := len(X)
	if n == 0 {
		return nil, nil, false
	}
	p := len(X[0])

	xtx := make([][]float64, p)
	xty := make([]float64, p)
	for i := 0; i < p; i++ {
		xtx[i] = make([]float64, p)
		for j := 0; j < p; j++ {
			var s float64
			for r := 0; r < n; r++ {
				s += X[r][i] * X[r][j]
			}
			xtx[i][j] = s
		}
		var sy float64
		for r := 0; r < n; r++ {
			sy += X[r][i] * y[r]
		}
		xty[i] = sy
	}

	inv, ok := invertMatrix(xtx)
	if !ok {
		return nil, nil, false
	}

	beta = make([]float64, p)
	for i := 0; i < p; i++ {
		var s float64
		for j := 0; j < p; j++ {
			s += inv[i][j] * xty[j]
		}
		beta[i] = s
	}

	var rss float64
	for r := 0; r < n; r++ {
		var fitted float64
		for j := 0; j < p; j++ {
			fitted += X[r][j] * beta[j]
		}
		e := y[r] - fitted
		rss += e * e
	}
	dof := n - p
	if dof <= 0 {
		return nil, nil, false
	}
	sigma2 := rss / float64(dof)

	se = make([]float64, p)
	for i := 0; i < p; i++ {
		v := sigma2 * inv[i][i]
		if v < 0 {
			v = 0
		}
		se[i] = math.Sqrt(v)
	}
	return beta, se, true
}

// invertMatrix inverts a square matrix by Gauss-Jordan elimination
// with partial pivoting.
func invertMatrix(m [][]float64) ([][]float64, bool) {
	n := len(m)
	aug := make([][]float64, n)
	for i := range m {
		aug[i] = make([]float64, 2*n)
		copy(aug[i], m[i])
		aug[i][n+i] = 1
	}

	for col := 0; col < n; col++ {
		pivot := col
		maxAbs := math.Abs(aug[col][col])
		for r := col + 1; r < n; r++ {
			if math.Abs(aug[r][col]) > maxAbs {
				pivot = r
				maxAbs = math.Abs(aug[r][col])
			}
		}
		if maxAbs < 1e-12 {
			return nil, false
		}
		aug[col], aug[pivot] = aug[pivot], aug[col]

		pv := aug[col][col]
		for c := 0; c < 2*n; c++ {
			aug[col][c] /= pv
		}
		for r := 0; r < n; r++ {
			if r == col {
				continue
			}
			factor := aug[r][col]
			for c := 0; c < 2*n; c++ {
				aug[r][c] -= factor * aug[col][c]
			}
		}
	}

	inv := make([][]float64, n)
	for i := range inv {
		inv[i] = aug[i][n:]
	}
	return inv, true
}
