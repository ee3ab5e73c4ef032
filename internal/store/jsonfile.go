package store

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sync"

	"github.com/roach88/promptmill/internal/atomicfile"
	"github.com/roach88/promptmill/internal/record"
)

// documentVersion is the format version written to JSON stores.
const documentVersion = 1

// document is the on-disk layout of a JSON store.
type document struct {
	Version int         `json:"version"`
	Prompts []promptDoc `json:"prompts"`
}

// promptDoc is one persisted prompt. Timestamps are kept as strings so the
// file carries exactly the RFC 3339 UTC form produced by record.Timestamp.
type promptDoc struct {
	ID          int64         `json:"prompt_id"`
	Text        string        `json:"prompt_text"`
	Status      record.Status `json:"status"`
	CreatedAt   string        `json:"created_at"`
	CompletedAt *string       `json:"completed_at"`
}

// JSONFile is a Store kept in a single JSON document.
//
// The whole document is held in memory and rewritten atomically after every
// mutation. A failed write rolls the in-memory state back so memory and disk
// never diverge.
type JSONFile struct {
	path  string
	clock Clock

	mu      sync.Mutex
	prompts []record.Prompt
}

var _ Store = (*JSONFile)(nil)

// OpenJSON loads the document at path. A missing file is an empty store; it
// is created on the first write. A malformed file, or one holding records
// that break the lifecycle invariant, is an error: records are never
// silently dropped.
func OpenJSON(path string, opts ...Option) (*JSONFile, error) {
	o := buildOptions(opts)
	s := &JSONFile{path: path, clock: o.clock, prompts: []record.Prompt{}}

	var doc document
	err := atomicfile.ReadJSON(path, &doc)
	if errors.Is(err, fs.ErrNotExist) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open json store: %w", err)
	}
	if doc.Version > documentVersion {
		return nil, fmt.Errorf("open json store: document version %d is newer than supported %d", doc.Version, documentVersion)
	}

	seen := make(map[int64]bool, len(doc.Prompts))
	for i, pd := range doc.Prompts {
		p, err := pd.toPrompt()
		if err != nil {
			return nil, fmt.Errorf("open json store: prompts[%d]: %w", i, err)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("open json store: duplicate prompt_id %d", p.ID)
		}
		seen[p.ID] = true
		s.prompts = append(s.prompts, p)
	}

	return s, nil
}

// Path returns the document location.
func (s *JSONFile) Path() string {
	return s.path
}

// NextID returns 1 + the largest id, or 1 when empty.
func (s *JSONFile) NextID(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.nextIDLocked(), nil
}

func (s *JSONFile) nextIDLocked() int64 {
	var maxID int64
	for _, p := range s.prompts {
		if p.ID > maxID {
			maxID = p.ID
		}
	}
	return maxID + 1
}

// Add appends a pending prompt and persists the document.
func (s *JSONFile) Add(ctx context.Context, text string) (int64, error) {
	normalized, err := prepareText(text)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := record.Prompt{
		ID:        s.nextIDLocked(),
		Text:      normalized,
		Status:    record.StatusPending,
		CreatedAt: s.clock.Now().UTC(),
	}

	s.prompts = append(s.prompts, p)
	if err := s.flushLocked(); err != nil {
		s.prompts = s.prompts[:len(s.prompts)-1]
		return 0, fmt.Errorf("add prompt: %w", err)
	}
	return p.ID, nil
}

// GetPending returns the first pending prompt not in exclude.
func (s *JSONFile) GetPending(ctx context.Context, exclude ...int64) (record.Prompt, bool, error) {
	if err := ctx.Err(); err != nil {
		return record.Prompt{}, false, err
	}
	if err := checkExclude(exclude); err != nil {
		return record.Prompt{}, false, err
	}
	skip := excludeSet(exclude)

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, p := range s.prompts {
		if !p.Pending() {
			continue
		}
		if _, skipped := skip[p.ID]; skipped {
			continue
		}
		return clonePrompt(p), true, nil
	}
	return record.Prompt{}, false, nil
}

// Complete marks a pending prompt completed and persists the document.
func (s *JSONFile) Complete(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.prompts {
		if s.prompts[i].ID != id {
			continue
		}
		if !s.prompts[i].Pending() {
			return nil
		}
		prev := s.prompts[i]
		now := s.clock.Now().UTC()
		s.prompts[i].Status = record.StatusCompleted
		s.prompts[i].CompletedAt = &now
		if err := s.flushLocked(); err != nil {
			s.prompts[i] = prev
			return fmt.Errorf("complete prompt %d: %w", id, err)
		}
		return nil
	}
	return nil
}

// List returns prompts in id order, filtered by status unless status is "".
func (s *JSONFile) List(ctx context.Context, status record.Status) ([]record.Prompt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	out := []record.Prompt{}
	for _, p := range s.prompts {
		if status != "" && p.Status != status {
			continue
		}
		out = append(out, clonePrompt(p))
	}
	return out, nil
}

// Counts returns prompt totals per status.
func (s *JSONFile) Counts(ctx context.Context) (record.Counts, error) {
	if err := ctx.Err(); err != nil {
		return record.Counts{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var c record.Counts
	for _, p := range s.prompts {
		switch p.Status {
		case record.StatusPending:
			c.Pending++
		case record.StatusCompleted:
			c.Completed++
		}
	}
	return c, nil
}

// Close is a no-op; every mutation is already on disk.
func (s *JSONFile) Close() error {
	return nil
}

func (s *JSONFile) flushLocked() error {
	doc := document{Version: documentVersion, Prompts: make([]promptDoc, 0, len(s.prompts))}
	for _, p := range s.prompts {
		doc.Prompts = append(doc.Prompts, fromPrompt(p))
	}
	return atomicfile.WriteJSON(s.path, doc)
}

func fromPrompt(p record.Prompt) promptDoc {
	pd := promptDoc{
		ID:        p.ID,
		Text:      p.Text,
		Status:    p.Status,
		CreatedAt: record.Timestamp(p.CreatedAt),
	}
	if p.CompletedAt != nil {
		ts := record.Timestamp(*p.CompletedAt)
		pd.CompletedAt = &ts
	}
	return pd
}

func (pd promptDoc) toPrompt() (record.Prompt, error) {
	p := record.Prompt{ID: pd.ID, Text: pd.Text, Status: pd.Status}

	created, err := record.ParseTimestamp(pd.CreatedAt)
	if err != nil {
		return record.Prompt{}, err
	}
	p.CreatedAt = created

	if pd.CompletedAt != nil {
		completed, err := record.ParseTimestamp(*pd.CompletedAt)
		if err != nil {
			return record.Prompt{}, err
		}
		p.CompletedAt = &completed
	}

	if err := p.Validate(); err != nil {
		return record.Prompt{}, err
	}
	return p, nil
}

func clonePrompt(p record.Prompt) record.Prompt {
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		p.CompletedAt = &t
	}
	return p
}
