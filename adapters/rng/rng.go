// Package rng provides named, seeded random streams so null sampling is
// reproducible under a fixed seed and independent of scheduling order.
package rng

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"convdep/ports"
)

// Adapter implements ports.RNGPort with FNV-derived stream offsets.
type Adapter struct{}

// NewAdapter creates the RNG adapter.
func NewAdapter() *Adapter {
	return &Adapter{}
}

// SeededStream creates a deterministic random number generator for a named
// operation. The same (name, seed) pair always yields the same stream.
func (a *Adapter) SeededStream(_ context.Context, name string, seed int64) (*rand.Rand, error) {
	return rand.New(rand.NewSource(seed ^ nameOffset(name))), nil
}

// CandidateStream derives an independent stream for one candidate's null
// trials within a turn. Streams for distinct candidates never collide even
// when they share a base seed.
func (a *Adapter) CandidateStream(_ context.Context, turnID int64, candidateID int64, baseSeed int64) (*rand.Rand, error) {
	name := fmt.Sprintf("turn:%d:candidate:%d", turnID, candidateID)
	return rand.New(rand.NewSource(baseSeed ^ nameOffset(name))), nil
}

// Unseeded creates a non-reproducible stream for production randomness.
func (a *Adapter) Unseeded(_ context.Context) (*rand.Rand, error) {
	return rand.New(rand.NewSource(time.Now().UnixNano())), nil
}

func nameOffset(name string) int64 {
	h := fnv.New64a()
	h.Write([]byte(name))
	return int64(h.Sum64())
}

var _ ports.RNGPort = (*Adapter)(nil)
