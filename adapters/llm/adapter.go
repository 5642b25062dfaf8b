// Package llm implements the LLM-backed model adapter: loss is derived
// from the model's judgment of how predictable the target utterance is
// given the transcript context, and embeddings come from the embeddings
// endpoint.
package llm

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"convdep/domain/conversation"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

const (
	defaultModel      = "gpt-4o-mini"
	defaultEmbedModel = "text-embedding-3-small"

	// Probability clamp before the negative-log transform.
	minProb = 1e-4
	maxProb = 1 - 1e-4
)

// Adapter implements ports.ModelAdapter against OpenAI.
type Adapter struct {
	client     *OpenAIClient
	model      string
	embedModel string
}

// NewAdapter constructs the LLM adapter. A missing credential is an
// ADAPTER_UNAVAILABLE error; the caller decides whether to select the
// fallback adapter instead, the constructor never does.
func NewAdapter(config Config) (*Adapter, error) {
	if strings.TrimSpace(config.APIKey) == "" {
		return nil, apperrors.AdapterUnavailable("OPENAI_API_KEY is not set")
	}

	client, err := newOpenAIClient(config)
	if err != nil {
		return nil, apperrors.AdapterUnavailable(err.Error())
	}

	model := config.Model
	if model == "" {
		model = defaultModel
	}
	embedModel := config.EmbedModel
	if embedModel == "" {
		embedModel = defaultEmbedModel
	}

	return &Adapter{client: client, model: model, embedModel: embedModel}, nil
}

// ComputeLoss asks the model how predictable the target is given the
// context and converts the returned probability into a pseudo
// negative-log-likelihood.
func (a *Adapter) ComputeLoss(ctx context.Context, window []conversation.Utterance, target conversation.Utterance) (float64, error) {
	prompt := predictabilityPrompt(window, target)
	reply, err := a.client.ChatCompletion(ctx, a.model, prompt, 16)
	if err != nil {
		return 0, apperrors.AdapterFailure("compute loss", err)
	}

	prob, err := parseProbability(reply)
	if err != nil {
		return 0, apperrors.AdapterFailure("compute loss", err)
	}
	return -math.Log(prob), nil
}

// ComputeMaskedLoss computes the loss with one candidate excluded from the
// context.
func (a *Adapter) ComputeMaskedLoss(ctx context.Context, window []conversation.Utterance, excludedID int64, target conversation.Utterance) (float64, error) {
	masked := make([]conversation.Utterance, 0, len(window))
	for _, u := range window {
		if u.ID != excludedID {
			masked = append(masked, u)
		}
	}
	return a.ComputeLoss(ctx, masked, target)
}

// Embed returns the embedding vector for text.
func (a *Adapter) Embed(ctx context.Context, text string) ([]float64, error) {
	vec, err := a.client.Embedding(ctx, a.embedModel, text)
	if err != nil {
		return nil, apperrors.AdapterFailure("embed", err)
	}
	return vec, nil
}

func predictabilityPrompt(window []conversation.Utterance, target conversation.Utterance) string {
	var b strings.Builder
	b.WriteString("Given this conversation so far:\n\n")
	if len(window) == 0 {
		b.WriteString("(no prior context)\n")
	}
	for _, u := range window {
		fmt.Fprintf(&b, "%s: %s\n", u.Speaker, u.Text)
	}
	fmt.Fprintf(&b, "\nHow predictable is this next reply?\n\n%s: %s\n\n", target.Speaker, target.Text)
	b.WriteString("Answer with a single number between 0 and 1, where 1 means the reply follows directly from the context and 0 means it is unrelated to it. Output only the number.")
	return b.String()
}

func parseProbability(reply string) (float64, error) {
	cleaned := strings.TrimSpace(reply)
	// Models occasionally wrap the number in prose; take the first token
	// that parses.
	for _, field := range strings.Fields(cleaned) {
		field = strings.Trim(field, ".,;:")
		if p, err := strconv.ParseFloat(field, 64); err == nil {
			return clampProb(p), nil
		}
	}
	return 0, fmt.Errorf("no probability in model reply %q", reply)
}

func clampProb(p float64) float64 {
	if p < minProb {
		return minProb
	}
	if p > maxProb {
		return maxProb
	}
	return p
}

var _ ports.ModelAdapter = (*Adapter)(nil)
