package ports

import (
	"context"

	"convdep/domain/conversation"
)

// AnchorStore is the bounded, insertion-ordered cross-turn memory of
// previously important utterances. Stores are constructed with a fixed
// capacity; adding beyond capacity evicts the oldest entry by insertion
// order (recency of discovery, not recency of topic). Adding a duplicate
// id refreshes the score to the max of old/new without changing position.
//
// The default implementation is process-lifetime memory. A store backed by
// an external database satisfies the same contract when cross-process
// consistency is required; the engine does not care which it is handed.
type AnchorStore interface {
	Add(ctx context.Context, anchor conversation.Anchor) error
	All(ctx context.Context) ([]conversation.Anchor, error)

	// Count returns the number of anchors currently held.
	Count(ctx context.Context) (int, error)
}
