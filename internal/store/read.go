package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/roach88/promptmill/internal/record"
)

// NextID returns 1 + MAX(prompt_id), or 1 for an empty table.
func (s *SQLite) NextID(ctx context.Context) (int64, error) {
	var id int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(prompt_id), 0) + 1 FROM prompts`).Scan(&id); err != nil {
		return 0, fmt.Errorf("next id: %w", err)
	}
	return id, nil
}

// GetPending returns the lowest-id pending prompt not listed in exclude.
func (s *SQLite) GetPending(ctx context.Context, exclude ...int64) (record.Prompt, bool, error) {
	if err := checkExclude(exclude); err != nil {
		return record.Prompt{}, false, err
	}
	query := `
		SELECT prompt_id, prompt_text, status, created_at, completed_at
		FROM prompts
		WHERE status = ?`
	args := []any{string(record.StatusPending)}

	if len(exclude) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(exclude)), ",")
		query += " AND prompt_id NOT IN (" + placeholders + ")"
		for _, id := range exclude {
			args = append(args, id)
		}
	}
	query += " ORDER BY prompt_id ASC LIMIT 1"

	row := s.db.QueryRowContext(ctx, query, args...)
	p, err := scanPrompt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return record.Prompt{}, false, nil
	}
	if err != nil {
		return record.Prompt{}, false, fmt.Errorf("get pending: %w", err)
	}
	return p, true, nil
}

// List returns prompts ordered by id, filtered by status unless status is "".
func (s *SQLite) List(ctx context.Context, status record.Status) ([]record.Prompt, error) {
	query := `
		SELECT prompt_id, prompt_text, status, created_at, completed_at
		FROM prompts`
	var args []any
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY prompt_id ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query prompts: %w", err)
	}
	defer rows.Close()

	var prompts []record.Prompt
	for rows.Next() {
		p, err := scanPrompt(rows)
		if err != nil {
			return nil, err
		}
		prompts = append(prompts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate prompts: %w", err)
	}

	// Return empty slice instead of nil
	if prompts == nil {
		prompts = []record.Prompt{}
	}

	return prompts, nil
}

// Counts returns prompt totals per status.
func (s *SQLite) Counts(ctx context.Context) (record.Counts, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM prompts GROUP BY status`)
	if err != nil {
		return record.Counts{}, fmt.Errorf("count prompts: %w", err)
	}
	defer rows.Close()

	var counts record.Counts
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return record.Counts{}, fmt.Errorf("scan count: %w", err)
		}
		switch record.Status(status) {
		case record.StatusPending:
			counts.Pending = n
		case record.StatusCompleted:
			counts.Completed = n
		}
	}
	if err := rows.Err(); err != nil {
		return record.Counts{}, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrompt(row rowScanner) (record.Prompt, error) {
	var (
		p           record.Prompt
		status      string
		createdAt   string
		completedAt sql.NullString
	)
	if err := row.Scan(&p.ID, &p.Text, &status, &createdAt, &completedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return record.Prompt{}, err
		}
		return record.Prompt{}, fmt.Errorf("scan prompt: %w", err)
	}

	p.Status = record.Status(status)

	created, err := record.ParseTimestamp(createdAt)
	if err != nil {
		return record.Prompt{}, fmt.Errorf("prompt %d: %w", p.ID, err)
	}
	p.CreatedAt = created

	if completedAt.Valid {
		completed, err := record.ParseTimestamp(completedAt.String)
		if err != nil {
			return record.Prompt{}, fmt.Errorf("prompt %d: %w", p.ID, err)
		}
		p.CompletedAt = &completed
	}

	return p, nil
}
