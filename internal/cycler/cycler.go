package cycler

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/roach88/promptmill/internal/atomicfile"
	"github.com/roach88/promptmill/internal/failure"
)

// FallbackText is drawn when the queue names an id the pool no longer has,
// which happens when the pool file shrinks between runs.
const FallbackText = "a beautiful day"

// queueVersion is the format version of the queue file.
const queueVersion = 1

// queueFile is the on-disk layout of the cycle queue. Files written before
// versioning have no version field and read as version 1.
type queueFile struct {
	Version int   `json:"version,omitempty"`
	Unused  []int `json:"unused_prompt_ids"`
}

// Cycler draws examples without repetition until the pool is exhausted,
// then reshuffles.
//
// Thread-safety: Draw is serialized by an internal mutex. Two processes
// sharing a queue file are not coordinated.
type Cycler struct {
	pool   Pool
	path   string
	perm   func(n int) []int
	logger *slog.Logger

	mu    sync.Mutex
	queue []int
}

// Option configures a Cycler.
type Option func(*Cycler)

// WithRand makes shuffles reproducible. Used by tests.
func WithRand(r *rand.Rand) Option {
	return func(c *Cycler) {
		if r != nil {
			c.perm = r.Perm
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cycler) {
		if l != nil {
			c.logger = l
		}
	}
}

// Open attaches a cycler to the queue file at path.
//
// A missing queue file starts a fresh cycle. A corrupt one is logged and
// also starts a fresh cycle: the cost is repeating some examples early,
// which does not affect correctness of the pipeline.
func Open(pool Pool, path string, opts ...Option) (*Cycler, error) {
	if pool.Len() == 0 {
		return nil, failure.New(failure.KindPoolLoad, "open cycler", "example pool is empty")
	}

	c := &Cycler{
		pool:   pool,
		path:   path,
		perm:   rand.Perm,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	var qf queueFile
	err := atomicfile.ReadJSON(path, &qf)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.queue = []int{}
	case err != nil:
		c.logger.Warn("example queue unreadable, starting a new cycle", "path", path, "error", err)
		c.queue = []int{}
	case qf.Version > queueVersion:
		return nil, fmt.Errorf("open cycler: queue version %d is newer than supported %d", qf.Version, queueVersion)
	default:
		c.queue = append([]int{}, qf.Unused...)
	}

	unknown := 0
	for _, id := range c.queue {
		if _, ok := pool.Text(id); !ok {
			unknown++
		}
	}
	if unknown > 0 {
		c.logger.Warn("example queue references ids missing from the pool", "count", unknown)
	}

	return c, nil
}

// Draw pops the next example, refilling the queue with a fresh random
// permutation of the pool when it is empty. The remaining queue is persisted
// before Draw returns; if that write fails the pop is undone.
func (c *Cycler) Draw(ctx context.Context) (Example, error) {
	if err := ctx.Err(); err != nil {
		return Example{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.queue) == 0 {
		c.refillLocked()
		c.logger.Info("example queue empty, reshuffled pool", "size", len(c.queue))
	}

	id := c.queue[0]
	rest := append([]int{}, c.queue[1:]...)

	if err := c.saveLocked(rest); err != nil {
		return Example{}, fmt.Errorf("draw example: %w", err)
	}
	c.queue = rest

	text, ok := c.pool.Text(id)
	if !ok {
		c.logger.Warn("example id missing from pool, using fallback text", "example_id", id)
		text = FallbackText
	}
	return Example{ID: id, Prompt: text}, nil
}

// Remaining returns the ids left in the current cycle, in draw order.
func (c *Cycler) Remaining() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.queue))
	copy(out, c.queue)
	return out
}

// Pool returns the example catalog.
func (c *Cycler) Pool() Pool {
	return c.pool
}

func (c *Cycler) refillLocked() {
	ids := c.pool.IDs()
	order := c.perm(len(ids))
	queue := make([]int, len(ids))
	for i, j := range order {
		queue[i] = ids[j]
	}
	c.queue = queue
}

func (c *Cycler) saveLocked(queue []int) error {
	return atomicfile.WriteJSON(c.path, queueFile{Version: queueVersion, Unused: queue})
}
