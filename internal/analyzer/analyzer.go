// Package analyzer wires the per-turn pipeline: candidate window
// construction, counterfactual scoring, significance testing, diversity
// selection, and anchor-memory upkeep.
package analyzer

import (
	"context"
	"sort"
	"strings"
	"unicode"

	"convdep/domain/conversation"
	"convdep/internal"
	"convdep/internal/decay"
	apperrors "convdep/internal/errors"
	"convdep/internal/mmr"
	"convdep/internal/nullgen"
	"convdep/internal/scorer"
	"convdep/internal/significance"
	"convdep/ports"
)

// Analyzer runs one analysis per turn. It owns no cross-turn state; anchor
// memory is passed in explicitly per call.
type Analyzer struct {
	adapter  ports.ModelAdapter
	scorer   *scorer.Scorer
	nulls    *nullgen.Generator
	selector *mmr.Selector
	log      *internal.Logger
}

// NewAnalyzer assembles the pipeline around one model adapter.
func NewAnalyzer(adapter ports.ModelAdapter, rng ports.RNGPort, log *internal.Logger) *Analyzer {
	if log == nil {
		log = internal.DefaultLogger
	}
	log = log.Named("analyzer")
	return &Analyzer{
		adapter:  adapter,
		scorer:   scorer.NewScorer(adapter, log),
		nulls:    nullgen.NewGenerator(adapter, rng, log),
		selector: mmr.NewSelector(adapter),
		log:      log,
	}
}

// Result is the per-turn output. Scored always carries every candidate with
// its full audit trail; Important is the significant, diversity-trimmed
// subset in rank order.
type Result struct {
	Important   []conversation.ScoredUtterance `json:"important"`
	Scored      []conversation.ScoredUtterance `json:"scored"`
	AnchorCount int                            `json:"anchor_count"`
}

// Analyze runs one turn against the recent window only, with no anchor
// memory involved.
func (a *Analyzer) Analyze(ctx context.Context, history []conversation.Utterance, current conversation.Utterance, opts conversation.AnalyzerOptions) (*Result, error) {
	return a.run(ctx, history, current, nil, opts)
}

// AnalyzeWithAnchors runs one turn with anchor entries mixed into the
// candidate window as global-class candidates. Newly important utterances
// are written back to the store only after the significant set is
// finalized; a failed turn leaves the store untouched.
func (a *Analyzer) AnalyzeWithAnchors(ctx context.Context, history []conversation.Utterance, current conversation.Utterance, store ports.AnchorStore, opts conversation.AnalyzerOptions) (*Result, error) {
	if store == nil {
		return nil, apperrors.InvalidInput("anchor store is required")
	}
	return a.run(ctx, history, current, store, opts)
}

func (a *Analyzer) run(ctx context.Context, history []conversation.Utterance, current conversation.Utterance, store ports.AnchorStore, opts conversation.AnalyzerOptions) (*Result, error) {
	if strings.TrimSpace(current.Text) == "" {
		return nil, apperrors.InvalidInput("current utterance text is empty")
	}
	if err := conversation.ValidateHistory(history); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}
	if len(history) > 0 && current.ID <= history[len(history)-1].ID {
		return nil, apperrors.InvalidInput("current utterance id must exceed every history id")
	}
	if err := opts.Validate(); err != nil {
		return nil, apperrors.InvalidInput(err.Error())
	}

	candidates, err := a.buildWindow(ctx, history, current, store, opts)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return a.finish(ctx, &Result{}, store)
	}

	window := make([]conversation.Utterance, len(candidates))
	for i, c := range candidates {
		window[i] = c.Utterance
	}

	decayCfg := decay.NewConfig(opts.HalfLifeTurns)
	scoreRes, err := a.scorer.ScoreAll(ctx, window, current, candidates, decayCfg, opts)
	if err != nil {
		return nil, err
	}

	significant, err := a.significantSubset(ctx, window, current, scoreRes.Scored, opts)
	if err != nil {
		return nil, err
	}

	important, err := a.selector.Select(ctx, significant, opts.K, *opts.MMRLambda)
	if err != nil {
		return nil, err
	}

	res := &Result{Important: important, Scored: scoreRes.Scored}
	if store != nil {
		for _, su := range important {
			anchor := conversation.Anchor{ID: su.ID, Text: su.Text, Score: su.Score, TS: su.Timestamp}
			if err := store.Add(ctx, anchor); err != nil {
				return nil, apperrors.StorageError("anchor write", err)
			}
		}
	}
	return a.finish(ctx, res, store)
}

// buildWindow assembles the active candidate set: the most recent k history
// utterances, classified local or topic, plus anchor entries not already in
// the window as global candidates. Anchors that overlap the window attach
// their stored score to the existing candidate instead.
func (a *Analyzer) buildWindow(ctx context.Context, history []conversation.Utterance, current conversation.Utterance, store ports.AnchorStore, opts conversation.AnalyzerOptions) ([]scorer.Candidate, error) {
	recent := history
	if len(recent) > opts.K {
		recent = recent[len(recent)-opts.K:]
	}

	candidates := make([]scorer.Candidate, 0, len(recent))
	index := make(map[int64]int, len(recent))
	for _, u := range recent {
		class := conversation.ClassLocal
		if len(sharedEntities(u.Text, current.Text)) > 0 {
			class = conversation.ClassTopic
		}
		index[u.ID] = len(candidates)
		candidates = append(candidates, scorer.Candidate{Utterance: u, Class: class})
	}

	if store == nil {
		return candidates, nil
	}

	stored, err := store.All(ctx)
	if err != nil {
		return nil, apperrors.StorageError("anchor read", err)
	}
	for _, anc := range stored {
		if anc.ID >= current.ID {
			continue
		}
		score := anc.Score
		if i, ok := index[anc.ID]; ok {
			candidates[i].AnchorScore = &score
			continue
		}
		candidates = append(candidates, scorer.Candidate{
			Utterance:   conversation.Utterance{ID: anc.ID, Text: anc.Text, Timestamp: anc.TS},
			Class:       conversation.ClassGlobal,
			AnchorScore: &score,
		})
	}

	sort.Slice(candidates, func(i, j int) bool { return candidates[i].ID < candidates[j].ID })
	return candidates, nil
}

// significantSubset runs null sampling and the BH-FDR decision over the
// testable family. Only candidates with positive delta loss enter the
// family; a candidate whose pool cannot support null sampling is excluded
// rather than defaulted either way. Robust z is attached wherever
// computable and, when a z threshold is configured, gates the final set.
func (a *Analyzer) significantSubset(ctx context.Context, window []conversation.Utterance, current conversation.Utterance, scored []conversation.ScoredUtterance, opts conversation.AnalyzerOptions) ([]conversation.ScoredUtterance, error) {
	type tested struct {
		idx int
		p   float64
		z   *float64
	}
	family := make([]tested, 0, len(scored))

	for i := range scored {
		su := &scored[i]
		if su.Detail.DeltaLoss <= 0 {
			continue
		}

		samples, err := a.nulls.Samples(ctx, nullgen.Request{
			TurnID:     current.ID,
			Window:     window,
			Target:     current,
			Candidate:  su.Utterance,
			Pool:       poolFor(window, su.ID),
			MaskedLoss: su.Detail.MaskedLoss,
			AgeWeight:  su.Detail.AgeWeight,
			Trials:     opts.NullSamples,
			Seed:       opts.Seed,
		})
		if err != nil {
			return nil, err
		}
		if len(samples) == 0 {
			a.log.Debug("candidate %d non-testable: %v",
				su.ID, apperrors.InsufficientNullSamples(su.ID))
			continue
		}

		p := significance.NewECDF(samples).PValue(su.Detail.RawScore)
		var zPtr *float64
		if z, ok := significance.RobustZ(su.Detail.RawScore, samples); ok {
			zPtr = &z
			su.Z = &z
		}
		family = append(family, tested{idx: i, p: p, z: zPtr})
	}

	if len(family) == 0 {
		return nil, nil
	}

	pvals := make([]float64, len(family))
	for i, f := range family {
		pvals[i] = f.p
	}
	decisions := significance.BenjaminiHochberg(pvals, opts.FDRAlpha)

	out := make([]conversation.ScoredUtterance, 0, len(family))
	for i, f := range family {
		if !decisions[i] {
			continue
		}
		if opts.ZThreshold != nil && (f.z == nil || *f.z < *opts.ZThreshold) {
			continue
		}
		out = append(out, scored[f.idx])
	}
	return out, nil
}

func (a *Analyzer) finish(ctx context.Context, res *Result, store ports.AnchorStore) (*Result, error) {
	if store == nil {
		return res, nil
	}
	n, err := store.Count(ctx)
	if err != nil {
		return nil, apperrors.StorageError("anchor count", err)
	}
	res.AnchorCount = n
	return res, nil
}

// poolFor collects the alternatives available for one candidate's null
// trials: every other window utterance.
func poolFor(window []conversation.Utterance, candidateID int64) []conversation.Utterance {
	pool := make([]conversation.Utterance, 0, len(window)-1)
	for _, u := range window {
		if u.ID != candidateID {
			pool = append(pool, u)
		}
	}
	return pool
}

// Dependencies converts an important list into typed dependency records for
// the current utterance. The class is the one assigned when the candidate
// window was built, so only anchor-resolved candidates come out global.
// Topic dependencies carry their shared-entity evidence; weights are final
// scores clamped into (0,1].
func Dependencies(current conversation.Utterance, important []conversation.ScoredUtterance) []conversation.Dependency {
	deps := make([]conversation.Dependency, 0, len(important))
	for _, su := range important {
		weight := su.Score
		if weight > 1 {
			weight = 1
		}
		if weight <= 0 {
			continue
		}

		class := su.Class
		if class == "" {
			class = conversation.ClassLocal
		}
		var evidence *conversation.TopicEvidence
		if class == conversation.ClassTopic {
			evidence = &conversation.TopicEvidence{SharedEntities: sharedEntities(su.Text, current.Text)}
		}

		dep, err := conversation.NewDependency(su.ID, weight, class, evidence)
		if err != nil {
			continue
		}
		deps = append(deps, dep)
	}
	return deps
}

// sharedEntities returns content tokens (4+ runes) present in both texts,
// in first-text order, deduplicated.
func sharedEntities(a, b string) []string {
	inB := make(map[string]bool)
	for _, tok := range contentTokens(b) {
		inB[tok] = true
	}

	seen := make(map[string]bool)
	var shared []string
	for _, tok := range contentTokens(a) {
		if inB[tok] && !seen[tok] {
			seen[tok] = true
			shared = append(shared, tok)
		}
	}
	return shared
}

func contentTokens(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := fields[:0]
	for _, f := range fields {
		if len([]rune(f)) >= 4 {
			out = append(out, f)
		}
	}
	return out
}
