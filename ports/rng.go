package ports

import (
	"context"
	"math/rand"
)

// RNGPort provides seeded random number generation for deterministic operations
type RNGPort interface {
	// SeededStream creates a deterministic random number generator for a named operation
	SeededStream(ctx context.Context, name string, seed int64) (*rand.Rand, error)

	// CandidateStream creates a deterministic RNG stream for one candidate's
	// null-sample trials. This ensures trials produce identical results for
	// the same turn, candidate and base seed regardless of scheduling order.
	CandidateStream(ctx context.Context, turnID int64, candidateID int64, baseSeed int64) (*rand.Rand, error)

	// Unseeded creates a non-reproducible stream for production randomness.
	Unseeded(ctx context.Context) (*rand.Rand, error)
}
