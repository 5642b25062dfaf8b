package significance

import (
	"math"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat/distuv"
)

// Consistency constant relating MAD to the standard deviation under
// normality: 1/Phi^-1(3/4).
const madScale = 0.6744897501960817

// RobustZ computes a median/MAD-based z-score for value against sample,
// resistant to the outlier losses that skew a mean/stdev z-score. The
// second return is false when the sample is too small or has zero MAD
// (zero-variance null distribution); callers must treat that as
// non-testable rather than significant.
func RobustZ(value float64, sample []float64) (float64, bool) {
	if len(sample) < 2 {
		return 0, false
	}

	median, err := stats.Median(sample)
	if err != nil {
		return 0, false
	}
	mad, err := stats.MedianAbsoluteDeviation(sample)
	if err != nil || mad == 0 || math.IsNaN(mad) {
		return 0, false
	}

	return madScale * (value - median) / mad, true
}

// ZPValue converts a robust z-score into a two-sided diagnostic p-value
// under the standard normal reference.
func ZPValue(z float64) float64 {
	n := distuv.Normal{Mu: 0, Sigma: 1}
	p := 2 * n.Survival(math.Abs(z))
	if p > 1 {
		return 1
	}
	return p
}
