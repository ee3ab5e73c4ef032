package store

import (
	"context"
	"fmt"

	"github.com/roach88/promptmill/internal/record"
)

// Add inserts a pending prompt with id = 1 + MAX(prompt_id).
// The id lookup and insert share a transaction, so a crash never leaves a
// half-written row; two processes can still race (see package doc).
func (s *SQLite) Add(ctx context.Context, text string) (int64, error) {
	normalized, err := prepareText(text)
	if err != nil {
		return 0, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("add prompt: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	var id int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(prompt_id), 0) + 1 FROM prompts`).Scan(&id); err != nil {
		return 0, fmt.Errorf("add prompt: next id: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO prompts
		(prompt_id, prompt_text, status, created_at, completed_at)
		VALUES (?, ?, ?, ?, NULL)
	`,
		id,
		normalized,
		string(record.StatusPending),
		record.Timestamp(s.clock.Now()),
	)
	if err != nil {
		return 0, fmt.Errorf("add prompt: insert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("add prompt: commit: %w", err)
	}

	return id, nil
}

// Complete marks a pending prompt completed.
// The status guard keeps completed_at from being rewritten and makes unknown
// ids a no-op.
func (s *SQLite) Complete(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE prompts
		SET status = ?, completed_at = ?
		WHERE prompt_id = ? AND status = ?
	`,
		string(record.StatusCompleted),
		record.Timestamp(s.clock.Now()),
		id,
		string(record.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("complete prompt %d: %w", id, err)
	}
	return nil
}
