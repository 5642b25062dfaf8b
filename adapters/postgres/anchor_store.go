// Package postgres backs anchor memory with a database so anchors survive
// process restarts and stay coherent across instances. The add/all
// interface is identical to the in-memory store; callers never see which
// one they hold.
package postgres

import (
	"context"

	"github.com/jmoiron/sqlx"

	"convdep/domain/conversation"
	"convdep/internal/errors"
	"convdep/ports"
)

const schema = `
CREATE TABLE IF NOT EXISTS anchors (
	position        BIGSERIAL PRIMARY KEY,
	conversation_id TEXT        NOT NULL,
	utterance_id    BIGINT      NOT NULL,
	text            TEXT        NOT NULL,
	score           DOUBLE PRECISION NOT NULL,
	ts              BIGINT      NOT NULL,
	UNIQUE (conversation_id, utterance_id)
);
CREATE INDEX IF NOT EXISTS idx_anchors_conversation ON anchors (conversation_id, position);
`

// Migrate creates the anchor schema if it does not exist.
func Migrate(ctx context.Context, db *sqlx.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return errors.StorageError("anchor schema migration", err)
	}
	return nil
}

// AnchorStoreImpl implements ports.AnchorStore for PostgreSQL, scoped to
// one conversation.
type AnchorStoreImpl struct {
	db             *sqlx.DB
	conversationID string
	capacity       int
}

// NewAnchorStore creates a PostgreSQL anchor store for one conversation.
func NewAnchorStore(db *sqlx.DB, conversationID string, capacity int) (*AnchorStoreImpl, error) {
	if capacity <= 0 {
		return nil, errors.ConfigInvalid("anchor capacity must be positive")
	}
	if conversationID == "" {
		return nil, errors.ConfigInvalid("conversation id is required")
	}
	return &AnchorStoreImpl{db: db, conversationID: conversationID, capacity: capacity}, nil
}

type anchorRow struct {
	UtteranceID int64   `db:"utterance_id"`
	Text        string  `db:"text"`
	Score       float64 `db:"score"`
	TS          int64   `db:"ts"`
}

// Add upserts an anchor. A duplicate utterance id keeps its original
// insertion position and the higher score; a new anchor may push the
// oldest entry out to hold the capacity bound.
func (s *AnchorStoreImpl) Add(ctx context.Context, anchor conversation.Anchor) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.StorageError("anchor add begin", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO anchors (conversation_id, utterance_id, text, score, ts)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (conversation_id, utterance_id)
		DO UPDATE SET score = GREATEST(anchors.score, EXCLUDED.score)
	`, s.conversationID, anchor.ID, anchor.Text, anchor.Score, anchor.TS)
	if err != nil {
		return errors.StorageError("anchor upsert", err)
	}

	// Evict oldest entries past capacity, by insertion position.
	_, err = tx.ExecContext(ctx, `
		DELETE FROM anchors
		WHERE conversation_id = $1 AND position IN (
			SELECT position FROM anchors
			WHERE conversation_id = $1
			ORDER BY position DESC
			OFFSET $2
		)
	`, s.conversationID, s.capacity)
	if err != nil {
		return errors.StorageError("anchor eviction", err)
	}

	if err := tx.Commit(); err != nil {
		return errors.StorageError("anchor add commit", err)
	}
	return nil
}

// All returns the conversation's anchors in insertion order.
func (s *AnchorStoreImpl) All(ctx context.Context) ([]conversation.Anchor, error) {
	var rows []anchorRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT utterance_id, text, score, ts
		FROM anchors
		WHERE conversation_id = $1
		ORDER BY position ASC
	`, s.conversationID)
	if err != nil {
		return nil, errors.StorageError("anchor list", err)
	}

	anchors := make([]conversation.Anchor, len(rows))
	for i, r := range rows {
		anchors[i] = conversation.Anchor{ID: r.UtteranceID, Text: r.Text, Score: r.Score, TS: r.TS}
	}
	return anchors, nil
}

// Count returns the number of anchors held for the conversation.
func (s *AnchorStoreImpl) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `
		SELECT COUNT(*) FROM anchors WHERE conversation_id = $1
	`, s.conversationID)
	if err != nil {
		return 0, errors.StorageError("anchor count", err)
	}
	return n, nil
}

var _ ports.AnchorStore = (*AnchorStoreImpl)(nil)
