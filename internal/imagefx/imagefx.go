// Package imagefx runs the external image generation tool for one prompt and
// reports which files it produced.
//
// Output is detected by listing the output directory before and after the
// run. Anything else writing to the same directory during a run is reported
// as output of that run.
package imagefx

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/roach88/promptmill/internal/failure"
)

// Defaults applied by New when the corresponding Config field is zero.
const (
	DefaultRuntime = "node"
	DefaultCount   = 1
	DefaultTimeout = 5 * time.Minute
)

// waitDelay bounds how long Wait blocks on output pipes after the tool is
// killed, in case it left children holding them open.
const waitDelay = 2 * time.Second

// Config locates the tool and its output directory.
type Config struct {
	// Runtime is the interpreter used to launch Tool, looked up on PATH.
	// Empty runs Tool directly.
	Runtime string

	// Tool is the path of the tool entry point.
	Tool string

	// OutputDir receives the generated images. Created if absent.
	OutputDir string

	// Count is the number of images requested per prompt.
	Count int

	// Timeout bounds a single run.
	Timeout time.Duration
}

// Result describes one tool run. Stdout and Stderr are populated whenever the
// tool actually ran, including failed runs.
type Result struct {
	Paths    []string
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// Dispatcher runs the image tool.
type Dispatcher struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// New creates a Dispatcher. Count and Timeout default when zero; Runtime is
// taken as given so callers can run the tool directly.
func New(cfg Config, opts ...Option) *Dispatcher {
	if cfg.Count <= 0 {
		cfg.Count = DefaultCount
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	d := &Dispatcher{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Config returns the effective configuration.
func (d *Dispatcher) Config() Config {
	return d.cfg
}

// Dispatch asks the tool to render prompt and returns the absolute paths of
// the files that appeared in the output directory, sorted.
//
// Errors carry one of the failure kinds ToolUnavailable, ToolFailed,
// NoArtifactProduced or Timeout. Cancellation of ctx by the caller is
// returned as ctx.Err().
func (d *Dispatcher) Dispatch(ctx context.Context, prompt, credential string) (Result, error) {
	const op = "dispatch"

	argv, err := d.command()
	if err != nil {
		return Result{}, err
	}

	dir, err := filepath.Abs(d.cfg.OutputDir)
	if err != nil {
		return Result{}, failure.Wrap(failure.KindToolUnavailable, op, "resolve output dir", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{}, failure.Wrap(failure.KindToolUnavailable, op, "create output dir", err)
	}

	before, err := snapshot(dir)
	if err != nil {
		return Result{}, failure.Wrap(failure.KindToolUnavailable, op, "list output dir", err)
	}

	argv = append(argv,
		"--prompt", prompt,
		"--cookie", credential,
		"--dir", dir,
		"--count", strconv.Itoa(d.cfg.Count),
	)

	runCtx, cancel := context.WithTimeout(ctx, d.cfg.Timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = waitDelay

	d.logger.Debug("running image tool", "tool", d.cfg.Tool, "runtime", d.cfg.Runtime, "dir", dir, "timeout", d.cfg.Timeout)

	start := time.Now()
	runErr := cmd.Run()
	res := Result{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if runErr != nil {
		switch {
		case ctx.Err() != nil:
			return res, fmt.Errorf("%s: %w", op, ctx.Err())
		case errors.Is(runCtx.Err(), context.DeadlineExceeded):
			return res, failure.Wrap(failure.KindTimeout, op, "image tool exceeded "+d.cfg.Timeout.String(), runErr)
		}
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			return res, failure.Wrap(failure.KindToolFailed, op, "image tool exited with code "+strconv.Itoa(exitErr.ExitCode()), runErr)
		}
		return res, failure.Wrap(failure.KindToolUnavailable, op, "cannot start image tool", runErr)
	}

	after, err := snapshot(dir)
	if err != nil {
		return res, failure.Wrap(failure.KindToolUnavailable, op, "list output dir", err)
	}
	for name := range after {
		if !before[name] {
			res.Paths = append(res.Paths, filepath.Join(dir, name))
		}
	}
	sort.Strings(res.Paths)

	if len(res.Paths) == 0 {
		return res, failure.New(failure.KindNoArtifactProduced, op, "image tool succeeded but no new file appeared in "+dir)
	}
	return res, nil
}

// command resolves the argv prefix, failing with ToolUnavailable when the
// tool or its runtime is missing.
func (d *Dispatcher) command() ([]string, error) {
	const op = "dispatch"

	if d.cfg.Tool == "" {
		return nil, failure.New(failure.KindToolUnavailable, op, "image tool path not configured")
	}
	if _, err := os.Stat(d.cfg.Tool); err != nil {
		return nil, failure.Wrap(failure.KindToolUnavailable, op, "image tool not found at "+d.cfg.Tool, err)
	}
	if d.cfg.Runtime == "" {
		return []string{d.cfg.Tool}, nil
	}
	runtime, err := exec.LookPath(d.cfg.Runtime)
	if err != nil {
		return nil, failure.Wrap(failure.KindToolUnavailable, op, "runtime "+d.cfg.Runtime+" not found on PATH", err)
	}
	return []string{runtime, d.cfg.Tool}, nil
}

func snapshot(dir string) (map[string]bool, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	names := make(map[string]bool, len(entries))
	for _, e := range entries {
		names[e.Name()] = true
	}
	return names, nil
}
