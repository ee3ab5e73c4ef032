package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/promptmill/internal/pipeline"
	"github.com/roach88/promptmill/internal/store"
)

// PipelineOptions holds flags shared by run, generate and dispatch.
type PipelineOptions struct {
	*RootOptions
	FailOnError bool
	Count       int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PipelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate new prompts, then render pending ones",
		Long: `Run both pipeline phases.

Phase 1 calls Gemini pipeline.prompts_per_run times and stores every new
prompt as pending. Phase 2 renders up to pipeline.images_per_run pending
prompts with the imageFX tool and marks each completed once its image
appears. Failures are logged and counted; the run always finishes both
phases.

Example:
  promptmill run
  promptmill run --config promptmill.yaml --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPipeline(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnError, "fail-on-error", false, "exit with code 1 when any iteration failed")

	return cmd
}

// NewGenerateCommand creates the generate command.
func NewGenerateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PipelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run phase 1 only: generate and store new prompts",
		Long: `Generate new prompts from the example pool and store them as pending.

Example:
  promptmill generate --count 10`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerate(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnError, "fail-on-error", false, "exit with code 1 when any iteration failed")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "number of prompts to generate (default pipeline.prompts_per_run)")

	return cmd
}

// NewDispatchCommand creates the dispatch command.
func NewDispatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PipelineOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Run phase 2 only: render pending prompts",
		Long: `Render pending prompts with the imageFX tool, oldest first.

Stops early when no pending prompt is left. A prompt that fails stays
pending and is not retried in the same invocation.

Example:
  promptmill dispatch --count 3`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatch(opts, cmd)
		},
	}

	cmd.Flags().BoolVar(&opts.FailOnError, "fail-on-error", false, "exit with code 1 when any iteration failed")
	cmd.Flags().IntVarP(&opts.Count, "count", "n", 0, "maximum prompts to render (default pipeline.images_per_run)")

	return cmd
}

func runPipeline(opts *PipelineOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	ctx, cancel := signalContext(cmd, s.logger)
	defer cancel()

	metrics := pipeline.NewMetrics()
	driver := s.newDriver(st, s.newGenerator(ctx), s.newDispatcher(), metrics)

	rep := driver.Run(ctx)
	s.writeMetrics(metrics)

	if err := s.out.Success(reportView(rep)); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return checkFailures(opts, rep.Failed())
}

func runGenerate(opts *PipelineOptions, cmd *cobra.Command) error {
	if opts.Count < 0 {
		return NewExitError(ExitCommandError, "--count must not be negative")
	}
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	ctx, cancel := signalContext(cmd, s.logger)
	defer cancel()

	n := s.cfg.Pipeline.PromptsPerRun
	if cmd.Flags().Changed("count") {
		n = opts.Count
	}

	metrics := pipeline.NewMetrics()
	rep := s.newDriver(st, s.newGenerator(ctx), nil, metrics).Generate(ctx, n)
	s.writeMetrics(metrics)

	if err := s.out.Success(phaseView{Phase: pipeline.PhaseGenerate, PhaseReport: rep}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return checkFailures(opts, rep.Failed())
}

func runDispatch(opts *PipelineOptions, cmd *cobra.Command) error {
	if opts.Count < 0 {
		return NewExitError(ExitCommandError, "--count must not be negative")
	}
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	ctx, cancel := signalContext(cmd, s.logger)
	defer cancel()

	m := s.cfg.Pipeline.ImagesPerRun
	if cmd.Flags().Changed("count") {
		m = opts.Count
	}
	if m > store.MaxExclude {
		return NewExitError(ExitCommandError, fmt.Sprintf("--count must be at most %d", store.MaxExclude))
	}

	metrics := pipeline.NewMetrics()
	rep := s.newDriver(st, nil, s.newDispatcher(), metrics).Dispatch(ctx, m)
	s.writeMetrics(metrics)

	if err := s.out.Success(phaseView{Phase: pipeline.PhaseDispatch, PhaseReport: rep}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return checkFailures(opts, rep.Failed())
}

// checkFailures turns counted failures into exit code 1 when requested.
func checkFailures(opts *PipelineOptions, failed int) error {
	if opts.FailOnError && failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("%d iteration(s) failed", failed))
	}
	return nil
}
