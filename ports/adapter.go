package ports

import (
	"context"

	"convdep/domain/conversation"
)

// ModelAdapter is the opaque scoring/embedding oracle behind the engine.
// Two implementations exist: an LLM-backed adapter deriving loss from the
// model's negative log-likelihood of the target given context, and a
// deterministic fallback approximating loss via embedding distance. The
// fallback is only used when configuration explicitly selects it; the core
// never substitutes it silently.
//
// Implementations must be safe for concurrent calls, and deterministic for
// identical inputs when used in fallback/testing mode.
type ModelAdapter interface {
	// ComputeLoss returns the model's loss on target given the full context.
	ComputeLoss(ctx context.Context, window []conversation.Utterance, target conversation.Utterance) (float64, error)

	// ComputeMaskedLoss returns the loss on target with the utterance
	// identified by excludedID removed from the context.
	ComputeMaskedLoss(ctx context.Context, window []conversation.Utterance, excludedID int64, target conversation.Utterance) (float64, error)

	// Embed returns a vector representation of text.
	Embed(ctx context.Context, text string) ([]float64, error)
}
