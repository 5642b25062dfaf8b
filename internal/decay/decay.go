// Package decay implements the half-life weighting curve the statistical
// engine applies to candidate age. This is deliberately not the per-class
// exponential-λ curve used by the heuristic detector; the two are separate
// contracts and are not meant to be numerically identical.
package decay

import (
	"math"

	"convdep/domain/conversation"
)

// Config holds one half-life (in turns) per dependency class. Topic
// continuity decays slower than strict local recency, and global anchors
// slower still.
type Config struct {
	LocalHalfLife  float64
	TopicHalfLife  float64
	GlobalHalfLife float64
}

// Topic and global multipliers over the local half-life.
const (
	topicFactor  = 2.0
	globalFactor = 4.0
)

// NewConfig derives the per-class half-lives from the configured local
// half-life in turns.
func NewConfig(halfLifeTurns float64) Config {
	if halfLifeTurns <= 0 {
		halfLifeTurns = 20
	}
	return Config{
		LocalHalfLife:  halfLifeTurns,
		TopicHalfLife:  halfLifeTurns * topicFactor,
		GlobalHalfLife: halfLifeTurns * globalFactor,
	}
}

// Weight returns the age weight for a candidate at the given turn distance,
// in (0,1]. Pure function: strictly decreasing in distance, exactly 1 at
// distance 0. Negative distances are treated as 0.
func Weight(distance float64, class conversation.DependencyClass, cfg Config) float64 {
	if distance <= 0 {
		return 1.0
	}

	halfLife := cfg.LocalHalfLife
	switch class {
	case conversation.ClassTopic:
		halfLife = cfg.TopicHalfLife
	case conversation.ClassGlobal:
		halfLife = cfg.GlobalHalfLife
	}
	if halfLife <= 0 {
		halfLife = 20
	}

	// 0.5^(d/h): weight halves every halfLife turns.
	w := math.Exp2(-distance / halfLife)
	if w <= 0 {
		// Underflow floor keeps the codomain in (0,1].
		return math.SmallestNonzeroFloat64
	}
	return w
}
