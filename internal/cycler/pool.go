// Package cycler hands out example prompts so that the whole pool is used
// once before any example repeats.
//
// The pool is a read-only catalog loaded at start-up. The cycle queue holds
// the ids not yet drawn in the current shuffle and is persisted after every
// draw, so a new process resumes the same cycle.
package cycler

import (
	"fmt"
	"os"
	"sort"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/roach88/promptmill/internal/failure"
)

// poolSchema constrains the example pool file: a list of structs with an
// integer id and a prompt holding at least one non-space character. Extra
// fields are allowed.
const poolSchema = `[...{
	id:     int
	prompt: string & =~"[^[:space:]]"
}]`

// Example is one seed prompt.
type Example struct {
	ID     int    `json:"id"`
	Prompt string `json:"prompt"`
}

// Pool is the read-only example catalog.
type Pool struct {
	texts map[int]string
	ids   []int
}

// NewPool builds a pool, rejecting duplicate ids.
func NewPool(examples []Example) (Pool, error) {
	p := Pool{texts: make(map[int]string, len(examples)), ids: make([]int, 0, len(examples))}
	for _, ex := range examples {
		if _, dup := p.texts[ex.ID]; dup {
			return Pool{}, failure.New(failure.KindPoolLoad, "load pool", fmt.Sprintf("duplicate example id %d", ex.ID))
		}
		p.texts[ex.ID] = ex.Prompt
		p.ids = append(p.ids, ex.ID)
	}
	sort.Ints(p.ids)
	return p, nil
}

// LoadPool reads and validates the example pool at path.
// Every failure carries failure.KindPoolLoad.
func LoadPool(path string) (Pool, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Pool{}, failure.Wrap(failure.KindPoolLoad, "load pool", "cannot read "+path, err)
	}
	examples, err := parsePool(raw, path)
	if err != nil {
		return Pool{}, err
	}
	return NewPool(examples)
}

func parsePool(raw []byte, filename string) ([]Example, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(poolSchema, cue.Filename("pool-schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile pool schema: %w", err)
	}

	data := ctx.CompileBytes(raw, cue.Filename(filename))
	if err := data.Err(); err != nil {
		return nil, failure.Wrap(failure.KindPoolLoad, "load pool", "parse "+filename+": "+cueerrors.Details(err, nil), err)
	}

	unified := schema.Unify(data)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return nil, failure.Wrap(failure.KindPoolLoad, "load pool", "invalid "+filename+": "+cueerrors.Details(err, nil), err)
	}

	var examples []Example
	if err := unified.Decode(&examples); err != nil {
		return nil, failure.Wrap(failure.KindPoolLoad, "load pool", "decode "+filename, err)
	}
	return examples, nil
}

// Len returns the number of examples.
func (p Pool) Len() int {
	return len(p.ids)
}

// IDs returns the example ids in ascending order.
func (p Pool) IDs() []int {
	out := make([]int, len(p.ids))
	copy(out, p.ids)
	return out
}

// Text returns the prompt for id.
func (p Pool) Text(id int) (string, bool) {
	text, ok := p.texts[id]
	return text, ok
}
