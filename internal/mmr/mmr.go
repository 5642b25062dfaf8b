// Package mmr selects a diverse top-k from the scored list with maximal
// marginal relevance: each pick balances a candidate's own score against
// its similarity to everything already chosen.
package mmr

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"convdep/domain/conversation"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

// Selector runs greedy MMR over adapter embeddings.
type Selector struct {
	adapter ports.ModelAdapter
}

// NewSelector creates an MMR selector.
func NewSelector(adapter ports.ModelAdapter) *Selector {
	return &Selector{adapter: adapter}
}

// Select picks up to k utterances from scored, greedily maximizing
//
//	lambda*relevance - (1-lambda)*maxSimToChosen
//
// where relevance is the candidate's final score and similarity is the
// embedding cosine. Ties break toward higher relevance, then lower id, so
// the selection is deterministic. lambda=1 reduces to plain top-k by score.
func (s *Selector) Select(ctx context.Context, scored []conversation.ScoredUtterance, k int, lambda float64) ([]conversation.ScoredUtterance, error) {
	if k <= 0 || len(scored) == 0 {
		return nil, nil
	}
	if k > len(scored) {
		k = len(scored)
	}

	embeds := make([][]float64, len(scored))
	for i, su := range scored {
		vec, err := s.adapter.Embed(ctx, su.Text)
		if err != nil {
			return nil, apperrors.AdapterFailure("mmr embedding", err)
		}
		embeds[i] = vec
	}

	chosen := make([]conversation.ScoredUtterance, 0, k)
	chosenIdx := make([]int, 0, k)
	used := make([]bool, len(scored))

	for len(chosen) < k {
		best := -1
		bestVal := math.Inf(-1)
		for i, su := range scored {
			if used[i] {
				continue
			}
			val := lambda*su.Score - (1-lambda)*maxSimilarity(embeds[i], embeds, chosenIdx)
			if best < 0 || betterPick(val, su, bestVal, scored[best]) {
				best, bestVal = i, val
			}
		}
		used[best] = true
		chosenIdx = append(chosenIdx, best)
		chosen = append(chosen, scored[best])
	}
	return chosen, nil
}

// betterPick orders candidates by MMR value, then relevance, then lower id.
func betterPick(val float64, su conversation.ScoredUtterance, bestVal float64, best conversation.ScoredUtterance) bool {
	if val != bestVal {
		return val > bestVal
	}
	if su.Score != best.Score {
		return su.Score > best.Score
	}
	return su.ID < best.ID
}

func maxSimilarity(vec []float64, embeds [][]float64, chosenIdx []int) float64 {
	most := 0.0
	for _, j := range chosenIdx {
		if sim := cosine(vec, embeds[j]); sim > most {
			most = sim
		}
	}
	return most
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := floats.Norm(a, 2), floats.Norm(b, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return floats.Dot(a, b) / (na * nb)
}
