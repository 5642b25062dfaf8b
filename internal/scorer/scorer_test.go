package scorer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"convdep/adapters/llm/fallback"
	"convdep/domain/conversation"
	"convdep/internal/decay"
	apperrors "convdep/internal/errors"
)

// MockAdapter lets tests control adapter behavior per call.
type MockAdapter struct {
	mock.Mock
}

func (m *MockAdapter) ComputeLoss(ctx context.Context, window []conversation.Utterance, target conversation.Utterance) (float64, error) {
	args := m.Called(ctx, window, target)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAdapter) ComputeMaskedLoss(ctx context.Context, window []conversation.Utterance, excludedID int64, target conversation.Utterance) (float64, error) {
	args := m.Called(ctx, window, excludedID, target)
	return args.Get(0).(float64), args.Error(1)
}

func (m *MockAdapter) Embed(ctx context.Context, text string) ([]float64, error) {
	args := m.Called(ctx, text)
	return args.Get(0).([]float64), args.Error(1)
}

func testWindow() []conversation.Utterance {
	return []conversation.Utterance{
		{ID: 1, Text: "the budget for next quarter is 40k", Speaker: "ben"},
		{ID: 2, Text: "lunch was great today", Speaker: "cal"},
		{ID: 3, Text: "did anyone watch the game", Speaker: "dee"},
	}
}

func TestScoreAllAuditTrail(t *testing.T) {
	m := new(MockAdapter)
	current := conversation.Utterance{ID: 4, Text: "remind me of the budget figure", Speaker: "ana"}
	window := testWindow()

	m.On("ComputeLoss", mock.Anything, window, current).Return(0.2, nil)
	m.On("ComputeMaskedLoss", mock.Anything, window, int64(1), current).Return(0.9, nil)
	m.On("ComputeMaskedLoss", mock.Anything, window, int64(2), current).Return(0.2, nil)
	m.On("ComputeMaskedLoss", mock.Anything, window, int64(3), current).Return(0.15, nil)

	s := NewScorer(m, nil)
	candidates := []Candidate{
		{Utterance: window[0], Class: conversation.ClassLocal},
		{Utterance: window[1], Class: conversation.ClassLocal},
		{Utterance: window[2], Class: conversation.ClassLocal},
	}

	res, err := s.ScoreAll(context.Background(), window, current, candidates, decay.NewConfig(20), conversation.DefaultOptions())
	assert.NoError(t, err)
	assert.Len(t, res.Scored, 3)

	// Candidate 1 had the large positive delta and must rank first.
	first := res.Scored[0]
	assert.Equal(t, int64(1), first.ID)
	assert.Equal(t, 1, first.Rank)
	assert.InDelta(t, 0.7, first.Detail.DeltaLoss, 1e-9)
	assert.InDelta(t, first.Detail.MaskedLoss-first.Detail.BaseLoss, first.Detail.DeltaLoss, 1e-12)
	assert.InDelta(t, first.Detail.DeltaLoss*first.Detail.AgeWeight, first.Detail.RawScore, 1e-12)

	// Negative delta is still scored, just last.
	last := res.Scored[2]
	assert.Equal(t, int64(3), last.ID)
	assert.Equal(t, 3, last.Rank)
	assert.Less(t, last.Detail.DeltaLoss, 0.0)
}

func TestScoreAllAnchorBlend(t *testing.T) {
	m := new(MockAdapter)
	current := conversation.Utterance{ID: 10, Text: "back to the budget", Speaker: "ana"}
	window := []conversation.Utterance{{ID: 2, Text: "budget is 40k", Speaker: "ben"}}

	m.On("ComputeLoss", mock.Anything, window, current).Return(0.3, nil)
	m.On("ComputeMaskedLoss", mock.Anything, window, int64(2), current).Return(0.8, nil)

	opts := conversation.DefaultOptions()
	anchorScore := 0.9
	s := NewScorer(m, nil)

	res, err := s.ScoreAll(context.Background(), window, current, []Candidate{
		{Utterance: window[0], Class: conversation.ClassGlobal, AnchorScore: &anchorScore},
	}, decay.NewConfig(20), opts)
	assert.NoError(t, err)

	got := res.Scored[0]
	want := *opts.AlphaMix*got.Detail.RawScore + (1-*opts.AlphaMix)*anchorScore
	assert.InDelta(t, want, got.Score, 1e-12)
	assert.Equal(t, conversation.ClassGlobal, got.Class)
}

func TestScoreAllTieBreakByID(t *testing.T) {
	m := new(MockAdapter)
	current := conversation.Utterance{ID: 4, Text: "hm", Speaker: "ana"}
	window := []conversation.Utterance{
		{ID: 1, Text: "a"}, {ID: 2, Text: "b"},
	}

	m.On("ComputeLoss", mock.Anything, window, current).Return(0.5, nil)
	// Masked equals base for both candidates, so both raw scores are zero
	// regardless of age weight.
	m.On("ComputeMaskedLoss", mock.Anything, window, mock.Anything, current).Return(0.5, nil)

	s := NewScorer(m, nil)
	res, err := s.ScoreAll(context.Background(), window, current, []Candidate{
		{Utterance: window[1], Class: conversation.ClassLocal},
		{Utterance: window[0], Class: conversation.ClassLocal},
	}, decay.NewConfig(20), conversation.DefaultOptions())
	assert.NoError(t, err)

	// Both deltas are zero, both raw scores zero: tie resolves by id.
	assert.Equal(t, int64(1), res.Scored[0].ID)
	assert.Equal(t, int64(2), res.Scored[1].ID)
}

func TestScoreAllAdapterFailure(t *testing.T) {
	m := new(MockAdapter)
	current := conversation.Utterance{ID: 4, Text: "x", Speaker: "ana"}
	window := testWindow()

	m.On("ComputeLoss", mock.Anything, window, current).Return(0.0, errors.New("network down"))

	s := NewScorer(m, nil)
	_, err := s.ScoreAll(context.Background(), window, current, []Candidate{
		{Utterance: window[0], Class: conversation.ClassLocal},
	}, decay.NewConfig(20), conversation.DefaultOptions())

	assert.Error(t, err)
	assert.Equal(t, apperrors.CodeAdapterFailure, apperrors.GetCode(err))
}

func TestScoreAllDeterministicWithFallback(t *testing.T) {
	a := fallback.NewAdapter()
	s := NewScorer(a, nil)
	window := testWindow()
	current := conversation.Utterance{ID: 4, Text: "remind me of the budget figure", Speaker: "ana"}
	candidates := []Candidate{
		{Utterance: window[0], Class: conversation.ClassLocal},
		{Utterance: window[1], Class: conversation.ClassLocal},
		{Utterance: window[2], Class: conversation.ClassLocal},
	}

	res1, err := s.ScoreAll(context.Background(), window, current, candidates, decay.NewConfig(20), conversation.DefaultOptions())
	assert.NoError(t, err)
	res2, err := s.ScoreAll(context.Background(), window, current, candidates, decay.NewConfig(20), conversation.DefaultOptions())
	assert.NoError(t, err)

	assert.Equal(t, res1.Scored, res2.Scored)
}

func TestScoreAllEmptyCandidates(t *testing.T) {
	s := NewScorer(fallback.NewAdapter(), nil)
	res, err := s.ScoreAll(context.Background(), nil, conversation.Utterance{ID: 1, Text: "hi"}, nil, decay.NewConfig(20), conversation.DefaultOptions())
	assert.NoError(t, err)
	assert.Empty(t, res.Scored)
}
