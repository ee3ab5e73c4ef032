package record

import (
	"fmt"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Status is the lifecycle state of a prompt record.
type Status string

const (
	// StatusPending marks a prompt that has not produced an image yet.
	StatusPending Status = "pending"
	// StatusCompleted marks a prompt with at least one confirmed image.
	StatusCompleted Status = "completed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s == StatusCompleted
}

// ParseStatus converts a user-supplied filter into a Status.
// The empty string parses to the empty Status, meaning "any".
func ParseStatus(s string) (Status, error) {
	st := Status(strings.ToLower(strings.TrimSpace(s)))
	if st == "" || st.Valid() {
		return st, nil
	}
	return "", fmt.Errorf("unknown status %q: must be %q or %q", s, StatusPending, StatusCompleted)
}

// Prompt is one persisted unit of work.
type Prompt struct {
	ID          int64      `json:"prompt_id" yaml:"prompt_id"`
	Text        string     `json:"prompt_text" yaml:"prompt_text"`
	Status      Status     `json:"status" yaml:"status"`
	CreatedAt   time.Time  `json:"created_at" yaml:"created_at"`
	CompletedAt *time.Time `json:"completed_at" yaml:"completed_at"`
}

// Pending reports whether the prompt still awaits an image.
func (p Prompt) Pending() bool {
	return p.Status == StatusPending
}

// Validate checks the lifecycle invariant.
func (p Prompt) Validate() error {
	if p.ID <= 0 {
		return fmt.Errorf("prompt id must be positive, got %d", p.ID)
	}
	if p.Text == "" {
		return fmt.Errorf("prompt %d: text is empty", p.ID)
	}
	switch p.Status {
	case StatusPending:
		if p.CompletedAt != nil {
			return fmt.Errorf("prompt %d: pending with completed_at set", p.ID)
		}
	case StatusCompleted:
		if p.CompletedAt == nil {
			return fmt.Errorf("prompt %d: completed without completed_at", p.ID)
		}
	default:
		return fmt.Errorf("prompt %d: unknown status %q", p.ID, p.Status)
	}
	return nil
}

// Counts summarises a store by status.
type Counts struct {
	Pending   int `json:"pending" yaml:"pending"`
	Completed int `json:"completed" yaml:"completed"`
}

// Total returns the number of records.
func (c Counts) Total() int {
	return c.Pending + c.Completed
}

// NormalizeText trims surrounding whitespace and applies Unicode NFC so that
// visually identical prompts are stored byte-identical.
func NormalizeText(s string) string {
	return norm.NFC.String(strings.TrimSpace(s))
}

// Timestamp formats t the way records persist it: RFC 3339 in UTC with
// sub-second precision.
func Timestamp(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

// ParseTimestamp is the inverse of Timestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}
