package analyzer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"convdep/adapters/llm/fallback"
	"convdep/adapters/rng"
	"convdep/domain/conversation"
	"convdep/internal/anchors"
	apperrors "convdep/internal/errors"
)

type failingAdapter struct {
	mock.Mock
}

func (f *failingAdapter) ComputeLoss(ctx context.Context, window []conversation.Utterance, target conversation.Utterance) (float64, error) {
	args := f.Called(ctx, window, target)
	return args.Get(0).(float64), args.Error(1)
}

func (f *failingAdapter) ComputeMaskedLoss(ctx context.Context, window []conversation.Utterance, excludedID int64, target conversation.Utterance) (float64, error) {
	args := f.Called(ctx, window, excludedID, target)
	return args.Get(0).(float64), args.Error(1)
}

func (f *failingAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	args := f.Called(ctx, text)
	return args.Get(0).([]float64), args.Error(1)
}

func newTestAnalyzer() *Analyzer {
	return NewAnalyzer(fallback.NewAdapter(), rng.NewAdapter(), nil)
}

func budgetHistory() []conversation.Utterance {
	return []conversation.Utterance{
		{ID: 1, Text: "good morning everyone", Speaker: "ana"},
		{ID: 2, Text: "the budget is 40k", Speaker: "ben"},
		{ID: 3, Text: "nice weather outside", Speaker: "cal"},
		{ID: 4, Text: "who won yesterday", Speaker: "dee"},
		{ID: 5, Text: "great lunch today", Speaker: "cal"},
	}
}

func budgetCurrent() conversation.Utterance {
	return conversation.Utterance{ID: 6, Text: "whats the budget decision", Speaker: "ana"}
}

func seededOptions() conversation.AnalyzerOptions {
	opts := conversation.DefaultOptions()
	opts.Seed = 7
	return opts
}

func TestAnalyzeSurfacesInformativeUtterance(t *testing.T) {
	a := newTestAnalyzer()

	res, err := a.Analyze(context.Background(), budgetHistory(), budgetCurrent(), seededOptions())
	require.NoError(t, err)

	require.NotEmpty(t, res.Important, "budget utterance should be significant")
	assert.Equal(t, int64(2), res.Important[0].ID)

	require.Len(t, res.Scored, 5)
	for i, su := range res.Scored {
		assert.Equal(t, i+1, su.Rank)
	}
	assert.Equal(t, int64(2), res.Scored[0].ID, "budget utterance must outrank small talk")
	assert.Greater(t, res.Scored[0].Detail.DeltaLoss, 0.0)
	assert.Equal(t, 0, res.AnchorCount)
}

func TestAnalyzeIdempotent(t *testing.T) {
	a := newTestAnalyzer()

	r1, err := a.Analyze(context.Background(), budgetHistory(), budgetCurrent(), seededOptions())
	require.NoError(t, err)
	r2, err := a.Analyze(context.Background(), budgetHistory(), budgetCurrent(), seededOptions())
	require.NoError(t, err)

	assert.Equal(t, r1.Scored, r2.Scored)
	assert.Equal(t, r1.Important, r2.Important)
}

func TestAnalyzeEmptyHistory(t *testing.T) {
	a := newTestAnalyzer()

	res, err := a.Analyze(context.Background(), nil, budgetCurrent(), seededOptions())
	require.NoError(t, err)
	assert.Empty(t, res.Important)
	assert.Empty(t, res.Scored)
}

func TestAnalyzeSingleCandidateNonTestable(t *testing.T) {
	// One candidate means no alternatives for a null distribution: it is
	// still scored, but cannot be declared significant.
	a := newTestAnalyzer()
	history := []conversation.Utterance{{ID: 2, Text: "the budget is 40k", Speaker: "ben"}}

	res, err := a.Analyze(context.Background(), history, budgetCurrent(), seededOptions())
	require.NoError(t, err)

	require.Len(t, res.Scored, 1)
	assert.Greater(t, res.Scored[0].Detail.DeltaLoss, 0.0)
	assert.Empty(t, res.Important)
}

func TestAnalyzeRejectsBadInput(t *testing.T) {
	a := newTestAnalyzer()
	ctx := context.Background()

	_, err := a.Analyze(ctx, budgetHistory(), conversation.Utterance{ID: 6, Text: "   "}, seededOptions())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	outOfOrder := []conversation.Utterance{{ID: 5, Text: "a"}, {ID: 3, Text: "b"}}
	_, err = a.Analyze(ctx, outOfOrder, budgetCurrent(), seededOptions())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	_, err = a.Analyze(ctx, budgetHistory(), conversation.Utterance{ID: 5, Text: "hello"}, seededOptions())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))

	bad := seededOptions()
	bad.FDRAlpha = 2
	_, err = a.Analyze(ctx, budgetHistory(), budgetCurrent(), bad)
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestAnalyzeWithAnchorsWritesAfterTurn(t *testing.T) {
	a := newTestAnalyzer()
	store, err := anchors.NewMemory(10)
	require.NoError(t, err)

	res, err := a.AnalyzeWithAnchors(context.Background(), budgetHistory(), budgetCurrent(), store, seededOptions())
	require.NoError(t, err)

	require.NotEmpty(t, res.Important)
	assert.Equal(t, 1, res.AnchorCount)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(2), all[0].ID)
	assert.Equal(t, "the budget is 40k", all[0].Text)
}

func TestAnalyzeWithAnchorsResurfacesEvictedUtterance(t *testing.T) {
	// The budget line is long out of the recent window; only its anchor
	// keeps it reachable as a global candidate.
	a := newTestAnalyzer()
	store, err := anchors.NewMemory(10)
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), conversation.Anchor{
		ID: 2, Text: "the budget is 40k", Score: 0.5, TS: 1000,
	}))

	history := []conversation.Utterance{
		{ID: 8, Text: "great lunch today", Speaker: "cal"},
		{ID: 9, Text: "nice weather outside", Speaker: "dee"},
	}
	current := conversation.Utterance{ID: 10, Text: "whats the budget decision", Speaker: "ana"}

	res, err := a.AnalyzeWithAnchors(context.Background(), history, current, store, seededOptions())
	require.NoError(t, err)

	require.NotEmpty(t, res.Important)
	assert.Equal(t, int64(2), res.Important[0].ID)
	assert.Equal(t, conversation.ClassGlobal, res.Important[0].Class)

	ids := make(map[int64]bool)
	for _, su := range res.Scored {
		ids[su.ID] = true
	}
	assert.True(t, ids[2], "anchor candidate missing from scored list")
	assert.Equal(t, 1, res.AnchorCount)

	// Re-adding the anchor must not lower its stored score.
	all, _ := store.All(context.Background())
	assert.GreaterOrEqual(t, all[0].Score, 0.5)
}

func TestAnalyzeFailedTurnLeavesAnchorsUntouched(t *testing.T) {
	m := new(failingAdapter)
	m.On("ComputeLoss", mock.Anything, mock.Anything, mock.Anything).Return(0.0, errors.New("inference backend down"))

	a := NewAnalyzer(m, rng.NewAdapter(), nil)
	store, err := anchors.NewMemory(10)
	require.NoError(t, err)
	require.NoError(t, store.Add(context.Background(), conversation.Anchor{ID: 1, Text: "kept", Score: 0.4}))

	_, err = a.AnalyzeWithAnchors(context.Background(), budgetHistory(), budgetCurrent(), store, seededOptions())
	require.Error(t, err)
	assert.Equal(t, apperrors.CodeAdapterFailure, apperrors.GetCode(err))

	all, _ := store.All(context.Background())
	require.Len(t, all, 1)
	assert.Equal(t, int64(1), all[0].ID)
	assert.Equal(t, 0.4, all[0].Score)
}

func TestAnalyzeWithAnchorsRequiresStore(t *testing.T) {
	a := newTestAnalyzer()
	_, err := a.AnalyzeWithAnchors(context.Background(), budgetHistory(), budgetCurrent(), nil, seededOptions())
	assert.Equal(t, apperrors.CodeInvalidInput, apperrors.GetCode(err))
}

func TestDependenciesClassification(t *testing.T) {
	current := conversation.Utterance{ID: 10, Text: "back to the budget numbers"}
	important := []conversation.ScoredUtterance{
		{Utterance: conversation.Utterance{ID: 2, Text: "the budget is 40k"},
			Class: conversation.ClassTopic, Score: 0.5},
		{Utterance: conversation.Utterance{ID: 8, Text: "sure lets do that"}, Score: 0.3},
		{Utterance: conversation.Utterance{ID: 1, Text: "old planning note"},
			Class: conversation.ClassGlobal, Score: 1.7},
	}

	deps := Dependencies(current, important)
	require.Len(t, deps, 3)

	assert.Equal(t, conversation.ClassTopic, deps[0].Class)
	require.NotNil(t, deps[0].Evidence)
	assert.Contains(t, deps[0].Evidence.SharedEntities, "budget")

	// Unset class falls back to local.
	assert.Equal(t, conversation.ClassLocal, deps[1].Class)
	assert.Nil(t, deps[1].Evidence)

	assert.Equal(t, conversation.ClassGlobal, deps[2].Class)
	assert.Equal(t, 1.0, deps[2].Weight, "weights clamp into (0,1]")
}

func TestWindowCandidateStaysTopicAfterAnchorWrite(t *testing.T) {
	// The budget line is resolved through the recent window, so it must come
	// out topic even though this turn also writes it into anchor memory.
	a := newTestAnalyzer()
	store, err := anchors.NewMemory(10)
	require.NoError(t, err)

	res, err := a.AnalyzeWithAnchors(context.Background(), budgetHistory(), budgetCurrent(), store, seededOptions())
	require.NoError(t, err)
	require.NotEmpty(t, res.Important)
	require.Equal(t, int64(2), res.Important[0].ID)

	all, err := store.All(context.Background())
	require.NoError(t, err)
	require.Len(t, all, 1, "this turn anchored the budget line")

	assert.Equal(t, conversation.ClassTopic, res.Important[0].Class)

	deps := Dependencies(budgetCurrent(), res.Important)
	require.NotEmpty(t, deps)
	assert.Equal(t, conversation.ClassTopic, deps[0].Class)
	require.NotNil(t, deps[0].Evidence)
	assert.Contains(t, deps[0].Evidence.SharedEntities, "budget")
}
