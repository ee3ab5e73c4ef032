// Package generator turns one drawn example into one new prompt through a
// text model, retrying transient failures a bounded number of times.
package generator

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/roach88/promptmill/internal/cycler"
	"github.com/roach88/promptmill/internal/failure"
)

// SystemInstruction frames every generation request.
const SystemInstruction = "You are a creative expert assistant for AI image generation. " +
	"Your task is to create a new, unique, and highly descriptive prompt inspired by the user's example, but not a direct copy. " +
	"Elaborate on the concept, adding details about the subject, setting, lighting, color palette, and artistic style. " +
	"Produce only the new prompt text."

// Defaults applied when the corresponding field is zero.
const (
	DefaultRetries         = 3
	DefaultRetryDelay      = 5 * time.Second
	DefaultTemperature     = 0.9
	DefaultMaxOutputTokens = 250
)

// Request is one call to a text model.
type Request struct {
	System          string
	User            string
	Temperature     float32
	MaxOutputTokens int32
}

// TextModel generates text for a request.
//
// Implementations classify their errors: failure.KindTransientService is
// retried, failure.KindEmptyResult and anything else abort the attempt.
type TextModel interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// ExampleSource hands out seed examples. *cycler.Cycler implements it.
type ExampleSource interface {
	Draw(ctx context.Context) (cycler.Example, error)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Generator produces one prompt per call.
type Generator struct {
	model    TextModel
	examples ExampleSource

	retries         int
	retryDelay      time.Duration
	temperature     float32
	maxOutputTokens int32
	sleep           SleepFunc
	logger          *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithRetries sets the total number of attempts per call.
func WithRetries(n int) Option {
	return func(g *Generator) {
		if n > 0 {
			g.retries = n
		}
	}
}

// WithRetryDelay sets the fixed pause between attempts.
func WithRetryDelay(d time.Duration) Option {
	return func(g *Generator) {
		if d >= 0 {
			g.retryDelay = d
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float32) Option {
	return func(g *Generator) {
		if t > 0 {
			g.temperature = t
		}
	}
}

// WithMaxOutputTokens caps the response length.
func WithMaxOutputTokens(n int32) Option {
	return func(g *Generator) {
		if n > 0 {
			g.maxOutputTokens = n
		}
	}
}

// WithSleep replaces the delay function. Tests pass a recorder.
func WithSleep(fn SleepFunc) Option {
	return func(g *Generator) {
		if fn != nil {
			g.sleep = fn
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// New creates a Generator. A nil model or example source is accepted; such a
// generator reports failure.KindUnavailable on every call.
func New(model TextModel, examples ExampleSource, opts ...Option) *Generator {
	g := &Generator{
		model:           model,
		examples:        examples,
		retries:         DefaultRetries,
		retryDelay:      DefaultRetryDelay,
		temperature:     DefaultTemperature,
		maxOutputTokens: DefaultMaxOutputTokens,
		sleep:           Sleep,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate draws an example and asks the model for a new prompt inspired by
// it. The returned text is trimmed and never empty.
func (g *Generator) Generate(ctx context.Context) (string, error) {
	const op = "generate"

	if g.model == nil || g.examples == nil {
		return "", failure.New(failure.KindUnavailable, op, "text model or example source not configured")
	}

	example, err := g.examples.Draw(ctx)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	req := Request{
		System:          SystemInstruction,
		User:            UserInstruction(example.Prompt),
		Temperature:     g.temperature,
		MaxOutputTokens: g.maxOutputTokens,
	}
	log := g.logger.With("example_id", example.ID)

	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		log.Debug("requesting prompt", "attempt", attempt, "max_attempts", g.retries)

		text, err := g.model.Generate(ctx, req)
		if err == nil {
			text = strings.TrimSpace(text)
			if text == "" {
				return "", failure.New(failure.KindEmptyResult, op, "model returned only whitespace")
			}
			log.Info("prompt generated", "attempt", attempt, "preview", preview(text))
			return text, nil
		}

		if !failure.IsTransient(err) {
			log.Warn("prompt generation aborted", "attempt", attempt, "kind", failure.KindOf(err), "error", err)
			return "", err
		}

		lastErr = err
		log.Warn("transient model error", "attempt", attempt, "max_attempts", g.retries, "error", err)
		if attempt == g.retries {
			break
		}
		if err := g.sleep(ctx, g.retryDelay); err != nil {
			return "", fmt.Errorf("%s: %w", op, err)
		}
	}

	return "", &failure.Error{
		Kind:     failure.KindTransientService,
		Op:       op,
		Message:  "retries exhausted",
		Attempts: g.retries,
		Err:      lastErr,
	}
}

// UserInstruction embeds an example in the user turn of the request.
func UserInstruction(example string) string {
	return "Create a new prompt inspired by this example: \n\n\"" + example + "\""
}

// Sleep waits for d, returning early with ctx.Err() if ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func preview(text string) string {
	const limit = 70
	r := []rune(text)
	if len(r) <= limit {
		return text
	}
	return string(r[:limit]) + "..."
}
