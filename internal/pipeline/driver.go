// Package pipeline drives the two phases of a run: generating new prompts
// into the store, then rendering pending prompts through the image tool.
//
// Component failures never abort a phase. They are counted by failure kind,
// logged, and the phase moves on to its next iteration.
package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/roach88/promptmill/internal/failure"
	"github.com/roach88/promptmill/internal/imagefx"
	"github.com/roach88/promptmill/internal/record"
)

// KindUnclassified labels failures that carry no failure.Kind, such as
// storage I/O errors.
const KindUnclassified = "UNCLASSIFIED"

// PromptStore is the part of store.Store the driver uses.
type PromptStore interface {
	Add(ctx context.Context, text string) (int64, error)
	GetPending(ctx context.Context, exclude ...int64) (record.Prompt, bool, error)
	Complete(ctx context.Context, id int64) error
	Counts(ctx context.Context) (record.Counts, error)
}

// PromptGenerator produces one new prompt per call.
type PromptGenerator interface {
	Generate(ctx context.Context) (string, error)
}

// ImageDispatcher renders one prompt. *imagefx.Dispatcher implements it.
type ImageDispatcher interface {
	Dispatch(ctx context.Context, prompt, credential string) (imagefx.Result, error)
}

// Config sizes a run.
type Config struct {
	// PromptsPerRun is the number of generation attempts in phase 1.
	PromptsPerRun int
	// ImagesPerRun caps the number of dispatch iterations in phase 2.
	ImagesPerRun int
	// Credential is passed to the image tool. Empty skips phase 2.
	Credential string
}

// PhaseReport summarizes one phase.
type PhaseReport struct {
	Attempted int            `json:"attempted" yaml:"attempted"`
	Succeeded int            `json:"succeeded" yaml:"succeeded"`
	Failures  map[string]int `json:"failures,omitempty" yaml:"failures,omitempty"`
	PromptIDs []int64        `json:"prompt_ids,omitempty" yaml:"prompt_ids,omitempty"`
	Skipped   bool           `json:"skipped,omitempty" yaml:"skipped,omitempty"`
}

// Failed returns the number of failed iterations.
func (r PhaseReport) Failed() int {
	n := 0
	for _, c := range r.Failures {
		n += c
	}
	return n
}

func (r *PhaseReport) fail(err error) string {
	kind := string(failure.KindOf(err))
	if kind == "" {
		kind = KindUnclassified
	}
	if r.Failures == nil {
		r.Failures = make(map[string]int)
	}
	r.Failures[kind]++
	return kind
}

// Report summarizes a full run.
type Report struct {
	RunID      string        `json:"run_id" yaml:"run_id"`
	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Generate   PhaseReport   `json:"generate" yaml:"generate"`
	Dispatch   PhaseReport   `json:"dispatch" yaml:"dispatch"`
	Counts     record.Counts `json:"counts" yaml:"counts"`
}

// Failed returns the number of failed iterations across both phases.
func (r Report) Failed() int {
	return r.Generate.Failed() + r.Dispatch.Failed()
}

// Driver orchestrates a run. It is not safe for concurrent use.
type Driver struct {
	store      PromptStore
	generator  PromptGenerator
	dispatcher ImageDispatcher
	cfg        Config

	runIDs  RunIDGenerator
	metrics *Metrics
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Driver.
type Option func(*Driver)

// WithRunIDs sets the run id generator.
func WithRunIDs(g RunIDGenerator) Option {
	return func(d *Driver) {
		if g != nil {
			d.runIDs = g
		}
	}
}

// WithMetrics records every phase into m.
func WithMetrics(m *Metrics) Option {
	return func(d *Driver) {
		d.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Driver) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithNow replaces the wall clock used for report timestamps.
func WithNow(now func() time.Time) Option {
	return func(d *Driver) {
		if now != nil {
			d.now = now
		}
	}
}

// New creates a Driver. The generator and dispatcher may be nil when the
// caller only runs the other phase; a phase whose collaborator is nil
// counts each iteration as failure.KindUnavailable.
func New(s PromptStore, g PromptGenerator, disp ImageDispatcher, cfg Config, opts ...Option) *Driver {
	d := &Driver{
		store:      s,
		generator:  g,
		dispatcher: disp,
		cfg:        cfg,
		runIDs:     UUIDv7Generator{},
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Run executes phase 1 then phase 2 under a fresh run id and reports the
// final store counts.
func (d *Driver) Run(ctx context.Context) Report {
	rep := Report{RunID: d.runIDs.Generate(), StartedAt: d.now().UTC()}
	log := d.logger.With("run_id", rep.RunID)
	log.Info("run started", "prompts_per_run", d.cfg.PromptsPerRun, "images_per_run", d.cfg.ImagesPerRun)

	rep.Generate = d.generate(ctx, log, d.cfg.PromptsPerRun)
	rep.Dispatch = d.dispatch(ctx, log, d.cfg.ImagesPerRun)

	// Counts are read even after cancellation so an interrupted run still
	// reports what the store holds.
	counts, err := d.store.Counts(context.WithoutCancel(ctx))
	if err != nil {
		log.Error("read store counts", "error", err)
	}
	rep.Counts = counts
	rep.FinishedAt = d.now().UTC()

	if d.metrics != nil {
		if err == nil {
			d.metrics.ObserveCounts(counts)
		}
		d.metrics.ObserveRun(rep.StartedAt, rep.FinishedAt)
	}

	log.Info("run finished",
		"generated", rep.Generate.Succeeded,
		"generate_failed", rep.Generate.Failed(),
		"dispatched", rep.Dispatch.Succeeded,
		"dispatch_failed", rep.Dispatch.Failed(),
		"pending", counts.Pending,
		"completed", counts.Completed,
	)
	return rep
}

// Generate runs phase 1 alone.
func (d *Driver) Generate(ctx context.Context, n int) PhaseReport {
	return d.generate(ctx, d.logger.With("run_id", d.runIDs.Generate()), n)
}

// Dispatch runs phase 2 alone.
func (d *Driver) Dispatch(ctx context.Context, m int) PhaseReport {
	return d.dispatch(ctx, d.logger.With("run_id", d.runIDs.Generate()), m)
}

// generate calls the generator n times, storing each result. It stops early
// only when ctx is done.
func (d *Driver) generate(ctx context.Context, log *slog.Logger, n int) PhaseReport {
	log = log.With("phase", PhaseGenerate)
	var rep PhaseReport
	defer d.observe(PhaseGenerate, &rep)

	log.Info("phase started", "iterations", n)
	for i := 1; i <= n; i++ {
		if ctx.Err() != nil {
			log.Warn("phase interrupted", "iteration", i, "error", ctx.Err())
			break
		}
		rep.Attempted++

		if d.generator == nil {
			kind := rep.fail(failure.New(failure.KindUnavailable, "generate", "generator not configured"))
			log.Error("prompt generation failed", "iteration", i, "kind", kind)
			continue
		}

		text, err := d.generator.Generate(ctx)
		if err != nil {
			kind := rep.fail(err)
			log.Error("prompt generation failed", "iteration", i, "kind", kind, "error", err)
			continue
		}

		id, err := d.store.Add(ctx, text)
		if err != nil {
			kind := rep.fail(err)
			log.Error("store prompt", "iteration", i, "kind", kind, "error", err)
			continue
		}

		rep.Succeeded++
		rep.PromptIDs = append(rep.PromptIDs, id)
		log.Info("prompt stored", "iteration", i, "prompt_id", id)
	}
	log.Info("phase finished", "succeeded", rep.Succeeded, "failed", rep.Failed())
	return rep
}

// dispatch renders up to m pending prompts. A prompt that fails is not
// retried within the same run.
func (d *Driver) dispatch(ctx context.Context, log *slog.Logger, m int) PhaseReport {
	log = log.With("phase", PhaseDispatch)
	var rep PhaseReport
	defer d.observe(PhaseDispatch, &rep)

	if d.cfg.Credential == "" {
		log.Error("image tool credential not set, skipping phase")
		rep.Skipped = true
		return rep
	}
	if d.dispatcher == nil {
		log.Error("image dispatcher not configured, skipping phase")
		rep.Skipped = true
		return rep
	}

	log.Info("phase started", "max_iterations", m)
	var attempted []int64
	for i := 1; i <= m; i++ {
		if ctx.Err() != nil {
			log.Warn("phase interrupted", "iteration", i, "error", ctx.Err())
			break
		}

		p, ok, err := d.store.GetPending(ctx, attempted...)
		if err != nil {
			kind := rep.fail(err)
			log.Error("fetch pending prompt", "iteration", i, "kind", kind, "error", err)
			break
		}
		if !ok {
			log.Info("no pending prompts left", "iteration", i)
			break
		}
		attempted = append(attempted, p.ID)
		rep.Attempted++
		plog := log.With("iteration", i, "prompt_id", p.ID)

		res, err := d.dispatcher.Dispatch(ctx, p.Text, d.cfg.Credential)
		if err != nil {
			if ctx.Err() != nil {
				rep.Attempted--
				plog.Warn("phase interrupted", "error", err)
				break
			}
			kind := rep.fail(err)
			plog.Error("image generation failed",
				"kind", kind,
				"error", err,
				"stdout", res.Stdout,
				"stderr", res.Stderr,
			)
			continue
		}

		if err := d.store.Complete(ctx, p.ID); err != nil {
			kind := rep.fail(err)
			plog.Error("mark prompt completed", "kind", kind, "error", err, "paths", res.Paths)
			continue
		}

		rep.Succeeded++
		rep.PromptIDs = append(rep.PromptIDs, p.ID)
		plog.Info("prompt completed", "paths", res.Paths, "duration", res.Duration)
	}
	log.Info("phase finished", "succeeded", rep.Succeeded, "failed", rep.Failed())
	return rep
}

func (d *Driver) observe(phase string, rep *PhaseReport) {
	if d.metrics != nil {
		d.metrics.ObservePhase(phase, *rep)
	}
}
