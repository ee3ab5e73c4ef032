package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/roach88/promptmill/internal/failure"
	"github.com/roach88/promptmill/internal/record"
)

// Backend names a storage implementation.
type Backend string

const (
	// BackendJSON stores all records in one atomically rewritten JSON file.
	BackendJSON Backend = "json"
	// BackendSQLite stores records in a SQLite database.
	BackendSQLite Backend = "sqlite"
)

// Backends lists the supported backends.
var Backends = []Backend{BackendJSON, BackendSQLite}

// MaxExclude bounds the exclude list GetPending accepts. The SQLite backend
// binds one parameter per id and SQLite caps bound parameters per statement,
// so callers must not attempt more prompts than this in one pass.
const MaxExclude = 10000

// Store is the record store used by the pipeline.
type Store interface {
	// NextID returns the id the next Add will assign.
	NextID(ctx context.Context) (int64, error)

	// Add persists a new pending prompt and returns its id.
	// Empty text fails with failure.KindInvalidInput.
	Add(ctx context.Context, text string) (int64, error)

	// GetPending returns the first pending prompt whose id is not in exclude.
	// ok is false when there is none. The record is not reserved.
	// More than MaxExclude ids fail with failure.KindInvalidInput.
	GetPending(ctx context.Context, exclude ...int64) (p record.Prompt, ok bool, err error)

	// Complete marks a pending prompt completed. Unknown or already completed
	// ids are a no-op.
	Complete(ctx context.Context, id int64) error

	// List returns prompts in id order, filtered by status unless status is "".
	List(ctx context.Context, status record.Status) ([]record.Prompt, error)

	// Counts returns the number of prompts per status.
	Counts(ctx context.Context) (record.Counts, error)

	// Close releases the backend.
	Close() error
}

// Clock supplies wall-clock time for created_at and completed_at.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// Option configures a store.
type Option func(*options)

type options struct {
	clock Clock
}

// WithClock overrides the wall clock. Used by tests for stable timestamps.
func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{clock: systemClock{}}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// ParseBackend validates a backend name.
func ParseBackend(s string) (Backend, error) {
	b := Backend(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Backends {
		if b == known {
			return b, nil
		}
	}
	return "", fmt.Errorf("unknown store backend %q: must be one of %v", s, Backends)
}

// Open opens the store at path with the given backend, creating the parent
// directory and an empty store when none exists.
func Open(backend Backend, path string, opts ...Option) (Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("open store: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("open store: ensure dir: %w", err)
	}

	switch backend {
	case BackendJSON:
		return OpenJSON(path, opts...)
	case BackendSQLite:
		return OpenSQLite(path, opts...)
	default:
		return nil, fmt.Errorf("open store: unknown backend %q", backend)
	}
}

// prepareText normalizes text and rejects empty input.
func prepareText(text string) (string, error) {
	normalized := record.NormalizeText(text)
	if normalized == "" {
		return "", failure.New(failure.KindInvalidInput, "add prompt", "prompt text is empty")
	}
	return normalized, nil
}

func checkExclude(ids []int64) error {
	if len(ids) > MaxExclude {
		return failure.New(failure.KindInvalidInput, "get pending",
			fmt.Sprintf("%d excluded ids exceeds limit %d", len(ids), MaxExclude))
	}
	return nil
}

func excludeSet(ids []int64) map[int64]struct{} {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}
