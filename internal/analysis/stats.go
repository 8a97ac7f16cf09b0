package analysis

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
)

// Summary holds the descriptive statistics for one sample list.
type Summary struct {
	Count    int     `json:"count"`
	Sum      float64 `json:"sum"`
	Mean     float64 `json:"mean"`
	Median   float64 `json:"median"`
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	P25      float64 `json:"p25"`
	P75      float64 `json:"p75"`
	P90      float64 `json:"p90"`
	P95      float64 `json:"p95"`
	Variance float64 `json:"variance"`
	StdDev   float64 `json:"stddev"`
}

// Summarize computes descriptive statistics over samples. Empty input
// yields the zero Summary rather than an error, so callers never branch
// on sample presence. Variance is population variance.
func Summarize(samples []float64) Summary {
	n := len(samples)
	if n == 0 {
		return Summary{}
	}

	data := stats.Float64Data(samples)
	// The stats functions only error on empty input, which is handled above.
	sum, _ := data.Sum()
	mean, _ := data.Mean()
	median, _ := data.Median()
	min, _ := data.Min()
	max, _ := data.Max()
	variance, _ := stats.PopulationVariance(data)
	stddev := math.Sqrt(variance)

	sorted := make([]float64, n)
	copy(sorted, samples)
	sort.Float64s(sorted)

	return Summary{
		Count:    n,
		Sum:      sum,
		Mean:     mean,
		Median:   median,
		Min:      min,
		Max:      max,
		P25:      percentile(sorted, 0.25),
		P75:      percentile(sorted, 0.75),
		P90:      percentile(sorted, 0.90),
		P95:      percentile(sorted, 0.95),
		Variance: variance,
		StdDev:   stddev,
	}
}

// percentile picks the sorted-order element at index floor(p*n), clamped
// to the last element. The convention is fixed so independent
// implementations agree bit-for-bit on ties.
func percentile(sorted []float64, p float64) float64 {
	idx := int(math.Floor(p * float64(len(sorted))))
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
