package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/roach88/promptmill/internal/config"
	"github.com/roach88/promptmill/internal/cycler"
	"github.com/roach88/promptmill/internal/gemini"
	"github.com/roach88/promptmill/internal/generator"
	"github.com/roach88/promptmill/internal/imagefx"
	"github.com/roach88/promptmill/internal/pipeline"
	"github.com/roach88/promptmill/internal/store"
)

// session carries what every command needs once flags are parsed.
type session struct {
	opts   *RootOptions
	cfg    *config.Config
	logger *slog.Logger
	out    *OutputFormatter
}

// newSession sets up logging, exports the dotenv file and loads
// configuration. Failures are reported through the formatter and returned
// as command errors.
func newSession(opts *RootOptions, cmd *cobra.Command) (*session, error) {
	out := &OutputFormatter{
		Format:  opts.Format,
		Writer:  cmd.OutOrStdout(),
		Verbose: opts.Verbose,
	}

	logLevel := slog.LevelInfo
	if opts.Verbose {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	loaded, err := config.LoadEnvFile(opts.EnvFile)
	if err != nil {
		return nil, fail(out, ErrCodeConfig, "failed to read env file", err)
	}
	if !loaded && opts.EnvFile != "" && cmd.Flags().Changed("env-file") {
		return nil, fail(out, ErrCodeConfig, "env file not found: "+opts.EnvFile, nil)
	}
	if loaded {
		logger.Debug("env file loaded", "path", opts.EnvFile)
	}

	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fail(out, ErrCodeConfig, "invalid configuration", err)
	}

	return &session{opts: opts, cfg: cfg, logger: logger, out: out}, nil
}

// openStore opens the configured record store.
func (s *session) openStore() (store.Store, error) {
	backend, err := store.ParseBackend(s.cfg.Store.Backend)
	if err != nil {
		return nil, fail(s.out, ErrCodeConfig, "invalid store backend", err)
	}
	s.logger.Debug("opening record store", "backend", backend, "path", s.cfg.Store.Path)
	st, err := store.Open(backend, s.cfg.Store.Path)
	if err != nil {
		return nil, fail(s.out, ErrCodeStore, "failed to open record store", err)
	}
	return st, nil
}

func (s *session) closeStore(st store.Store) {
	if err := st.Close(); err != nil {
		s.logger.Error("error closing record store", "error", err)
	}
}

// loadCycler loads the example pool and attaches it to its queue file.
func (s *session) loadCycler() (*cycler.Cycler, error) {
	pool, err := cycler.LoadPool(s.cfg.Examples.PoolPath)
	if err != nil {
		return nil, err
	}
	return cycler.Open(pool, s.cfg.Examples.QueuePath, cycler.WithLogger(s.logger))
}

// newGenerator wires the generator. A missing example pool or text model is
// logged and leaves the generator unavailable instead of failing the
// command, so phase 2 still runs.
func (s *session) newGenerator(ctx context.Context) *generator.Generator {
	var source generator.ExampleSource
	c, err := s.loadCycler()
	if err != nil {
		s.logger.Error("example pool unavailable", "path", s.cfg.Examples.PoolPath, "error", err)
	} else {
		source = c
	}

	var model generator.TextModel
	m, err := s.newTextModel(ctx)
	if err != nil {
		s.logger.Error("text model unavailable", "error", err)
	} else {
		model = m
	}

	g := s.cfg.Gemini
	return generator.New(model, source,
		generator.WithRetries(g.Retries),
		generator.WithRetryDelay(g.RetryDelay),
		generator.WithTemperature(g.Temperature),
		generator.WithMaxOutputTokens(g.MaxOutputTokens),
		generator.WithLogger(s.logger),
	)
}

func (s *session) newTextModel(ctx context.Context) (generator.TextModel, error) {
	if s.opts.NewTextModel != nil {
		return s.opts.NewTextModel(ctx, s.cfg.Gemini)
	}
	return gemini.New(ctx, gemini.Config{
		Project:  s.cfg.Gemini.Project,
		Location: s.cfg.Gemini.Location,
		Model:    s.cfg.Gemini.Model,
	})
}

func (s *session) newDispatcher() *imagefx.Dispatcher {
	fx := s.cfg.ImageFX
	return imagefx.New(imagefx.Config{
		Runtime:   fx.Runtime,
		Tool:      fx.Tool,
		OutputDir: fx.OutputDir,
		Count:     fx.Count,
		Timeout:   fx.Timeout,
	}, imagefx.WithLogger(s.logger))
}

func (s *session) newDriver(st store.Store, gen pipeline.PromptGenerator, disp pipeline.ImageDispatcher, metrics *pipeline.Metrics) *pipeline.Driver {
	return pipeline.New(st, gen, disp, pipeline.Config{
		PromptsPerRun: s.cfg.Pipeline.PromptsPerRun,
		ImagesPerRun:  s.cfg.Pipeline.ImagesPerRun,
		Credential:    s.cfg.ImageFX.Cookie,
	},
		pipeline.WithRunIDs(s.opts.RunIDs),
		pipeline.WithMetrics(metrics),
		pipeline.WithLogger(s.logger),
	)
}

// writeMetrics exports the registry when a textfile path is configured.
// Export failures are logged only.
func (s *session) writeMetrics(m *pipeline.Metrics) {
	path := s.cfg.Metrics.Textfile
	if path == "" {
		return
	}
	if err := m.WriteTextfile(path); err != nil {
		s.logger.Error("metrics export failed", "path", path, "error", err)
		return
	}
	s.logger.Debug("metrics written", "path", path)
}

// signalContext cancels on SIGINT or SIGTERM.
// Uses the command's context if available (for testing).
func signalContext(cmd *cobra.Command, logger *slog.Logger) (context.Context, context.CancelFunc) {
	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		select {
		case sig := <-sigChan:
			logger.Info("received signal, stopping after current step", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigChan)
		cancel()
	}
}
