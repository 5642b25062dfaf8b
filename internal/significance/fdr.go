package significance

import "sort"

// BenjaminiHochberg applies the BH step-up procedure to a family of
// p-values at false-discovery-rate alpha. The result is aligned with the
// input: result[i] reports whether pvals[i] is significant.
//
// Sort ascending, find the largest rank j (1-based) with
// p(j) <= (j/n)*alpha; everything with p <= p(j) is declared significant.
// If no such j exists the significant set is empty. This is the
// multiple-comparison guard against false positives from testing many
// candidates per turn.
func BenjaminiHochberg(pvals []float64, alpha float64) []bool {
	n := len(pvals)
	result := make([]bool, n)
	if n == 0 || alpha <= 0 {
		return result
	}

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return pvals[order[a]] < pvals[order[b]]
	})

	threshold := -1.0
	for rank := n; rank >= 1; rank-- {
		p := pvals[order[rank-1]]
		if p <= float64(rank)/float64(n)*alpha {
			threshold = p
			break
		}
	}
	if threshold < 0 {
		return result
	}

	for i, p := range pvals {
		if p <= threshold {
			result[i] = true
		}
	}
	return result
}
