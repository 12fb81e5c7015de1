package analysis

import (
	"math"

	"gonum.org/v1/gonum/stat"
)

// sampleStdDev is the unbiased standard deviation; it is 0 for fewer than two values.
func sampleStdDev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	return stat.StdDev(xs, nil)
}

// rollingStdDev returns the sample standard deviation of every trailing window of xs,
// starting at index window-1.
func rollingStdDev(xs []float64, window int) []float64 {
	if window <= 0 || len(xs) < window {
		return nil
	}
	out := make([]float64, 0, len(xs)-window+1)
	for end := window; end <= len(xs); end++ {
		out = append(out, sampleStdDev(xs[end-window:end]))
	}
	return out
}

func isFinite(x float64) bool {
	return !math.IsNaN(x) && !math.IsInf(x, 0)
}

func allFinite(xs []float64) bool {
	for _, x := range xs {
		if !isFinite(x) {
			return false
		}
	}
	return true
}
