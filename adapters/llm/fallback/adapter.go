// Package fallback implements the deterministic model adapter: embeddings
// are feature-hashed bags of tokens and loss is embedding distance between
// the target and its best-matching context utterance. It needs no network
// or credential, so the pipeline stays testable and degrades gracefully —
// but only when configuration explicitly selects it.
package fallback

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"gonum.org/v1/gonum/floats"

	"convdep/domain/conversation"
	"convdep/ports"
)

// Embedding dimensionality for the feature hasher.
const embedDim = 256

// Adapter implements ports.ModelAdapter deterministically.
type Adapter struct{}

// NewAdapter creates the fallback adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// ComputeLoss approximates the model loss as 1 minus the best cosine match
// between the target and any context utterance. An empty context gives the
// maximum loss of 1: nothing predicts the target.
func (a *Adapter) ComputeLoss(_ context.Context, window []conversation.Utterance, target conversation.Utterance) (float64, error) {
	targetVec := hashEmbed(target.Text)

	best := 0.0
	for _, u := range window {
		if sim := cosine(targetVec, hashEmbed(u.Text)); sim > best {
			best = sim
		}
	}
	return 1.0 - best, nil
}

// ComputeMaskedLoss computes the loss with one candidate excluded.
func (a *Adapter) ComputeMaskedLoss(ctx context.Context, window []conversation.Utterance, excludedID int64, target conversation.Utterance) (float64, error) {
	masked := make([]conversation.Utterance, 0, len(window))
	for _, u := range window {
		if u.ID != excludedID {
			masked = append(masked, u)
		}
	}
	return a.ComputeLoss(ctx, masked, target)
}

// Embed returns the feature-hashed embedding of text. Deterministic for
// identical inputs.
func (a *Adapter) Embed(_ context.Context, text string) ([]float64, error) {
	return hashEmbed(text), nil
}

// hashEmbed maps each token into one of embedDim buckets by FNV hash and
// counts occurrences, then l2-normalizes. Token order does not matter.
func hashEmbed(text string) []float64 {
	vec := make([]float64, embedDim)
	for _, tok := range tokenize(text) {
		h := fnv.New32a()
		h.Write([]byte(tok))
		vec[h.Sum32()%embedDim]++
	}

	norm := floats.Norm(vec, 2)
	if norm > 0 {
		floats.Scale(1/norm, vec)
	}
	return vec
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func cosine(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	// Inputs are unit vectors; the dot product is the cosine.
	return floats.Dot(a, b)
}

var _ ports.ModelAdapter = (*Adapter)(nil)
