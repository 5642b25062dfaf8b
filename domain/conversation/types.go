package conversation

import (
	"fmt"
	"strings"

	"convdep/domain/core"
)

// ============================================================================
// STABLE PRIMITIVES (Canonical, never change)
// ============================================================================

// Utterance is one turn of a multi-party conversation. The ID is turn order
// (monotonically increasing integer), not wall-clock; Timestamp is epoch-ms.
// Utterances are immutable once created and owned by the caller's history.
type Utterance struct {
	ID        int64  `json:"id"`
	Text      string `json:"text"`
	Speaker   string `json:"speaker"`
	Timestamp int64  `json:"timestamp"`
}

// DependencyClass discriminates how a dependency was resolved.
type DependencyClass string

const (
	// ClassLocal is strict recency: the candidate sits in the recent window.
	ClassLocal DependencyClass = "local"
	// ClassTopic is topical continuity within the recent window.
	ClassTopic DependencyClass = "topic"
	// ClassGlobal is reserved for dependencies resolved via anchor memory
	// rather than the recent window.
	ClassGlobal DependencyClass = "global"
)

// TopicEvidence carries the payload that is only meaningful for topic
// dependencies.
type TopicEvidence struct {
	SharedEntities []string `json:"shared_entities"`
}

// Dependency links the current utterance back to a prior one.
// Weight is in (0,1]. Evidence is set only for ClassTopic.
type Dependency struct {
	ID       int64           `json:"id"`
	Weight   float64         `json:"weight"`
	Class    DependencyClass `json:"type"`
	Evidence *TopicEvidence  `json:"evidence,omitempty"`
}

// ScoreDetail is the per-candidate audit trail. Every scored utterance
// carries one so results are reproducible and debuggable.
// INVARIANTS:
// - DeltaLoss == MaskedLoss - BaseLoss
// - AgeWeight in (0,1]
// - DeltaLoss may be negative (candidate hurt prediction); such candidates
//   are scored for diagnostics but never declared significant.
type ScoreDetail struct {
	BaseLoss   float64 `json:"base_loss"`
	MaskedLoss float64 `json:"masked_loss"`
	DeltaLoss  float64 `json:"delta_loss"`
	AgeWeight  float64 `json:"age_weight"`
	RawScore   float64 `json:"raw_score"`
	FinalScore float64 `json:"final_score"`
}

// ScoredUtterance is an utterance plus its scoring outcome for one turn.
// Rank is 1-based, 1 = most important; ties broken by ascending ID.
// Class records how the candidate entered the window: global only when it
// was resolved via anchor memory rather than the recent window.
type ScoredUtterance struct {
	Utterance
	Class  DependencyClass `json:"class"`
	Score  float64         `json:"score"`
	Rank   int             `json:"rank"`
	Z      *float64        `json:"z,omitempty"`
	Detail ScoreDetail     `json:"detail"`
}

// Anchor is a durable-within-process record of an utterance previously
// marked important. Created by the orchestrator after a turn's significant
// set is finalized; never mutated once added except score refresh on a
// duplicate id; destroyed only by capacity eviction or process restart.
type Anchor struct {
	ID    int64   `json:"id"`
	Text  string  `json:"text"`
	Score float64 `json:"score"`
	TS    int64   `json:"ts"`
}

// ============================================================================
// CONSTRUCTORS
// ============================================================================

// NewUtterance creates an utterance with validation
func NewUtterance(id int64, text, speaker string, timestamp int64) (Utterance, error) {
	if id < 0 {
		return Utterance{}, fmt.Errorf("utterance id must be >= 0, got %d", id)
	}
	if strings.TrimSpace(text) == "" {
		return Utterance{}, core.ErrEmptyUtterance
	}
	return Utterance{ID: id, Text: text, Speaker: speaker, Timestamp: timestamp}, nil
}

// NewDependency creates a dependency with invariant validation
func NewDependency(id int64, weight float64, class DependencyClass, evidence *TopicEvidence) (Dependency, error) {
	if weight <= 0 || weight > 1 {
		return Dependency{}, fmt.Errorf("dependency weight must be in (0,1], got %f", weight)
	}
	switch class {
	case ClassLocal, ClassTopic, ClassGlobal:
	default:
		return Dependency{}, fmt.Errorf("unknown dependency class %q", class)
	}
	if evidence != nil && class != ClassTopic {
		return Dependency{}, fmt.Errorf("evidence is only meaningful for %q dependencies", ClassTopic)
	}
	return Dependency{ID: id, Weight: weight, Class: class, Evidence: evidence}, nil
}

// ValidateHistory checks that utterance ids are unique and strictly
// increasing within a conversation.
func ValidateHistory(history []Utterance) error {
	for i := 1; i < len(history); i++ {
		if history[i].ID <= history[i-1].ID {
			return fmt.Errorf("%w: id %d at position %d follows id %d",
				core.ErrNonMonotonicID, history[i].ID, i, history[i-1].ID)
		}
	}
	return nil
}
