// Package anchors holds the bounded cross-turn memory of utterances that
// proved significant, so later turns can re-surface them as candidates
// even after they fall out of the recency window.
package anchors

import (
	"context"
	"sync"

	"convdep/domain/conversation"
	apperrors "convdep/internal/errors"
	"convdep/ports"
)

// DefaultCapacity bounds the in-memory store when no explicit capacity is
// configured.
const DefaultCapacity = 32

// Memory is an in-process AnchorStore. Anchors keep insertion order; when
// the store is full the oldest entry is evicted first.
type Memory struct {
	mu       sync.Mutex
	capacity int
	entries  []conversation.Anchor
}

// NewMemory creates a bounded in-memory store.
func NewMemory(capacity int) (*Memory, error) {
	if capacity <= 0 {
		return nil, apperrors.ConfigInvalid("anchor capacity must be positive")
	}
	return &Memory{capacity: capacity, entries: make([]conversation.Anchor, 0, capacity)}, nil
}

// Add inserts an anchor. Re-adding an existing id keeps its original
// position and retains the higher of the two scores; it never triggers an
// eviction. A genuinely new anchor evicts the oldest entry when full.
func (m *Memory) Add(_ context.Context, anchor conversation.Anchor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for i := range m.entries {
		if m.entries[i].ID == anchor.ID {
			if anchor.Score > m.entries[i].Score {
				m.entries[i].Score = anchor.Score
			}
			return nil
		}
	}

	if len(m.entries) >= m.capacity {
		m.entries = m.entries[1:]
	}
	m.entries = append(m.entries, anchor)
	return nil
}

// All returns the anchors oldest-first. The slice is a copy.
func (m *Memory) All(_ context.Context) ([]conversation.Anchor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]conversation.Anchor, len(m.entries))
	copy(out, m.entries)
	return out, nil
}

// Count returns the number of stored anchors.
func (m *Memory) Count(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

var _ ports.AnchorStore = (*Memory)(nil)
