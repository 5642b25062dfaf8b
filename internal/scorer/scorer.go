// Package scorer computes counterfactual importance for each candidate in
// the active window: how much worse the model predicts the current
// utterance when the candidate is masked out of context.
package scorer

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"convdep/domain/conversation"
	"convdep/internal"
	"convdep/internal/decay"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

// Bound on concurrent masked-loss calls per turn.
const maxConcurrentLosses = 6

// Candidate is one prior utterance under evaluation, tagged with the
// dependency class that governs its decay curve. AnchorScore is set when
// the candidate also has an anchor-memory entry.
type Candidate struct {
	conversation.Utterance
	Class       conversation.DependencyClass
	AnchorScore *float64
}

// Scorer runs the per-candidate loss computations through the adapter.
type Scorer struct {
	adapter ports.ModelAdapter
	log     *internal.Logger
}

// NewScorer creates a scorer.
func NewScorer(adapter ports.ModelAdapter, log *internal.Logger) *Scorer {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Scorer{adapter: adapter, log: log.Named("scorer")}
}

// Result carries the full scored list plus the shared base loss.
type Result struct {
	// Scored is sorted descending by final score, ties broken by ascending
	// utterance id, with 1-based ranks assigned.
	Scored   []conversation.ScoredUtterance
	BaseLoss float64
}

// ScoreAll computes the audit trail for every candidate. Masked-loss calls
// fan out concurrently and are re-associated to their candidate index
// before any ordering step, so the output is deterministic for a
// deterministic adapter regardless of completion order.
func (s *Scorer) ScoreAll(
	ctx context.Context,
	window []conversation.Utterance,
	current conversation.Utterance,
	candidates []Candidate,
	decayCfg decay.Config,
	opts conversation.AnalyzerOptions,
) (*Result, error) {
	if len(candidates) == 0 {
		return &Result{}, nil
	}

	baseLoss, err := s.adapter.ComputeLoss(ctx, window, current)
	if err != nil {
		return nil, apperrors.AdapterFailure("base loss", err)
	}

	maskedLosses := make([]float64, len(candidates))
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentLosses)
	for i := range candidates {
		eg.Go(func() error {
			loss, err := s.adapter.ComputeMaskedLoss(egCtx, window, candidates[i].ID, current)
			if err != nil {
				return apperrors.AdapterFailure("masked loss", err)
			}
			maskedLosses[i] = loss
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	scored := make([]conversation.ScoredUtterance, len(candidates))
	for i, cand := range candidates {
		deltaLoss := maskedLosses[i] - baseLoss
		ageWeight := decay.Weight(float64(current.ID-cand.ID), cand.Class, decayCfg)
		rawScore := deltaLoss * ageWeight

		finalScore := rawScore
		if cand.AnchorScore != nil {
			alphaMix := *opts.AlphaMix
			finalScore = alphaMix*rawScore + (1-alphaMix)*(*cand.AnchorScore)
		}

		scored[i] = conversation.ScoredUtterance{
			Utterance: cand.Utterance,
			Class:     cand.Class,
			Score:     finalScore,
			Detail: conversation.ScoreDetail{
				BaseLoss:   baseLoss,
				MaskedLoss: maskedLosses[i],
				DeltaLoss:  deltaLoss,
				AgeWeight:  ageWeight,
				RawScore:   rawScore,
				FinalScore: finalScore,
			},
		}
	}

	sortAndRank(scored)
	s.log.Debug("scored %d candidates, base loss %.4f", len(scored), baseLoss)
	return &Result{Scored: scored, BaseLoss: baseLoss}, nil
}

// sortAndRank orders the scored list descending by final score with
// deterministic ascending-id tie-breaks, then assigns 1-based ranks.
func sortAndRank(scored []conversation.ScoredUtterance) {
	sort.SliceStable(scored, func(a, b int) bool {
		if scored[a].Score != scored[b].Score {
			return scored[a].Score > scored[b].Score
		}
		return scored[a].ID < scored[b].ID
	})
	for i := range scored {
		scored[i].Rank = i + 1
	}
}
