// Package nullgen produces per-candidate reference distributions of
// "importance under chance": the candidate's slot is refilled with randomly
// drawn alternatives and the same raw score function is recomputed.
package nullgen

import (
	"context"
	"math/rand"

	"golang.org/x/sync/errgroup"

	"convdep/domain/conversation"
	"convdep/internal"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

// Bound on concurrent adapter calls per candidate.
const maxConcurrentTrials = 4

// Generator builds null-score samples through the model adapter.
type Generator struct {
	adapter ports.ModelAdapter
	rng     ports.RNGPort
	log     *internal.Logger
}

// NewGenerator creates a null-sample generator.
func NewGenerator(adapter ports.ModelAdapter, rng ports.RNGPort, log *internal.Logger) *Generator {
	if log == nil {
		log = internal.DefaultLogger
	}
	return &Generator{adapter: adapter, rng: rng, log: log.Named("nullgen")}
}

// Request describes one candidate's null-sampling run. MaskedLoss and
// AgeWeight are the values already computed for the candidate by the
// scorer, so null scores are on exactly the same scale as the raw score.
type Request struct {
	TurnID     int64
	Window     []conversation.Utterance
	Target     conversation.Utterance
	Candidate  conversation.Utterance
	Pool       []conversation.Utterance
	MaskedLoss float64
	AgeWeight  float64
	Trials     int
	Seed       int64 // 0 = unseeded (production)
}

// Samples runs req.Trials independent null trials. Each trial replaces the
// candidate's slot with a random alternative from the pool and recomputes
// rawScore = (maskedLoss - baseLoss') * ageWeight.
//
// Fewer than 2 alternatives in the pool degrades to an empty sample set:
// the candidate becomes non-testable (p-value undefined, excluded from the
// significant set) rather than defaulted either way. Replacement draws are
// made up front from a single stream, so results are reproducible for a
// fixed seed no matter how the concurrent adapter calls interleave.
func (g *Generator) Samples(ctx context.Context, req Request) ([]float64, error) {
	if len(req.Pool) < 2 {
		g.log.Debug("candidate %d: pool of %d alternatives, skipping null sampling",
			req.Candidate.ID, len(req.Pool))
		return nil, nil
	}
	if req.Trials <= 0 {
		return nil, nil
	}

	stream, err := g.stream(ctx, req)
	if err != nil {
		return nil, apperrors.Wrap(err, "null sample rng stream")
	}

	// Deterministic draw order, then fan out the adapter calls.
	replacements := make([]conversation.Utterance, req.Trials)
	for i := range replacements {
		replacements[i] = req.Pool[stream.Intn(len(req.Pool))]
	}

	scores := make([]float64, req.Trials)
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(maxConcurrentTrials)

	for i := range replacements {
		eg.Go(func() error {
			nullWindow := substitute(req.Window, req.Candidate.ID, replacements[i])
			baseLoss, err := g.adapter.ComputeLoss(egCtx, nullWindow, req.Target)
			if err != nil {
				return apperrors.AdapterFailure("null trial loss", err)
			}
			scores[i] = (req.MaskedLoss - baseLoss) * req.AgeWeight
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return scores, nil
}

func (g *Generator) stream(ctx context.Context, req Request) (*rand.Rand, error) {
	if req.Seed == 0 {
		return g.rng.Unseeded(ctx)
	}
	return g.rng.CandidateStream(ctx, req.TurnID, req.Candidate.ID, req.Seed)
}

// substitute returns a copy of window with the utterance identified by id
// replaced in place. The slot keeps the original id and timestamp so the
// age structure of the context is unchanged; only the content varies.
func substitute(window []conversation.Utterance, id int64, replacement conversation.Utterance) []conversation.Utterance {
	out := make([]conversation.Utterance, len(window))
	copy(out, window)
	for i := range out {
		if out[i].ID == id {
			out[i].Text = replacement.Text
			out[i].Speaker = replacement.Speaker
		}
	}
	return out
}
