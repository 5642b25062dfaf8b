// Package significance converts raw importance scores into calibrated
// significance decisions: empirical CDFs over null samples, the
// Benjamini-Hochberg false-discovery-rate procedure across the per-turn
// test family, and median/MAD robust z-scores.
package significance

import (
	"sort"
)

// ECDF is the empirical cumulative distribution function of a null sample,
// F(x) = P(null <= x). Immutable once built.
type ECDF struct {
	sorted []float64
}

// NewECDF builds an ECDF from a sample of null scores. The input is copied;
// a nil or empty sample yields a nil ECDF (non-testable candidate).
func NewECDF(sample []float64) *ECDF {
	if len(sample) == 0 {
		return nil
	}
	sorted := make([]float64, len(sample))
	copy(sorted, sample)
	sort.Float64s(sorted)
	return &ECDF{sorted: sorted}
}

// Len returns the sample size.
func (e *ECDF) Len() int {
	if e == nil {
		return 0
	}
	return len(e.sorted)
}

// At evaluates F(x) via binary search over the sorted sample. Non-decreasing,
// bounded in [0,1], and At(max(sample)) == 1.
func (e *ECDF) At(x float64) float64 {
	if e == nil || len(e.sorted) == 0 {
		return 0
	}
	// Index of the first element strictly greater than x == count of
	// elements <= x.
	n := sort.Search(len(e.sorted), func(i int) bool { return e.sorted[i] > x })
	return float64(n) / float64(len(e.sorted))
}

// Smallest reportable empirical p-value. An observation above every null
// sample is evidence, not probability zero.
const minPValue = 1e-6

// PValue returns the empirical p-value for an observed score s: the
// probability the null exceeds the observation, 1 - F(s), clamped to
// (0,1]. A zero p-value is impossible by construction.
func (e *ECDF) PValue(s float64) float64 {
	if e == nil || len(e.sorted) == 0 {
		return 1.0
	}
	p := 1.0 - e.At(s)
	if p < minPValue {
		return minPValue
	}
	if p > 1 {
		return 1.0
	}
	return p
}
