package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/roach88/promptmill/internal/config"
)

// clearEnv blanks the variables a developer machine may already export.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, name := range []string{"GOOGLE_CLOUD_PROJECT", "GOOGLE_CLOUD_LOCATION", "GOOGLE_LABS_COOKIE"} {
		t.Setenv(name, "")
		require.NoError(t, os.Unsetenv(name))
	}
}

func TestLoadWithOptions(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		clearEnv(t)

		cfg, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.NoError(t, err)

		require.Equal(t, "gemini-2.0-flash", cfg.Gemini.Model)
		require.InDelta(t, 0.9, cfg.Gemini.Temperature, 1e-6)
		require.Equal(t, int32(250), cfg.Gemini.MaxOutputTokens)
		require.Equal(t, 3, cfg.Gemini.Retries)
		require.Equal(t, 5*time.Second, cfg.Gemini.RetryDelay)
		require.Equal(t, "node", cfg.ImageFX.Runtime)
		require.Equal(t, "imageFX-api/dist/cli.js", cfg.ImageFX.Tool)
		require.Equal(t, "images", cfg.ImageFX.OutputDir)
		require.Equal(t, 1, cfg.ImageFX.Count)
		require.Equal(t, 5*time.Minute, cfg.ImageFX.Timeout)
		require.Equal(t, "json", cfg.Store.Backend)
		require.Equal(t, "prompts.json", cfg.Store.Path)
		require.Equal(t, "examples.json", cfg.Examples.PoolPath)
		require.Equal(t, "example_queue.json", cfg.Examples.QueuePath)
		require.Equal(t, 5, cfg.Pipeline.PromptsPerRun)
		require.Equal(t, 5, cfg.Pipeline.ImagesPerRun)
		require.Empty(t, cfg.ImageFX.Cookie)
		require.Empty(t, cfg.Metrics.Textfile)
	})

	t.Run("loads from file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "promptmill.yaml")
		data := []byte(`gemini:
  project: file-project
  location: europe-west4
  temperature: 0.7
  retries: 5
  retry_delay: 250ms
imagefx:
  runtime: ""
  tool: /opt/imagefx/cli.js
  timeout: 90s
store:
  backend: SQLite
examples:
  pool_path: data/pool.json
  queue_path: data/queue.json
pipeline:
  prompts_per_run: 2
  images_per_run: 0
metrics:
  textfile: /var/lib/node_exporter/promptmill.prom
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		cfg, err := config.LoadWithOptions(config.Options{Path: path, EnvPrefix: "PMTEST"})
		require.NoError(t, err)

		require.Equal(t, "file-project", cfg.Gemini.Project)
		require.Equal(t, "europe-west4", cfg.Gemini.Location)
		require.InDelta(t, 0.7, cfg.Gemini.Temperature, 1e-6)
		require.Equal(t, 5, cfg.Gemini.Retries)
		require.Equal(t, 250*time.Millisecond, cfg.Gemini.RetryDelay)
		require.Equal(t, "", cfg.ImageFX.Runtime)
		require.Equal(t, "/opt/imagefx/cli.js", cfg.ImageFX.Tool)
		require.Equal(t, 90*time.Second, cfg.ImageFX.Timeout)
		require.Equal(t, "sqlite", cfg.Store.Backend)
		require.Equal(t, "prompts.db", cfg.Store.Path)
		require.Equal(t, "data/pool.json", cfg.Examples.PoolPath)
		require.Equal(t, 2, cfg.Pipeline.PromptsPerRun)
		require.Equal(t, 0, cfg.Pipeline.ImagesPerRun)
		require.Equal(t, "/var/lib/node_exporter/promptmill.prom", cfg.Metrics.Textfile)
	})

	t.Run("env overrides file", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "promptmill.yaml")
		data := []byte(`gemini:
  project: file-project
pipeline:
  prompts_per_run: 2
`)
		require.NoError(t, os.WriteFile(path, data, 0o600))

		t.Setenv("PMTEST_GEMINI_PROJECT", "env-project")
		t.Setenv("PMTEST_PIPELINE_PROMPTS_PER_RUN", "9")
		t.Setenv("PMTEST_IMAGEFX_TIMEOUT", "30s")

		cfg, err := config.LoadWithOptions(config.Options{Path: path, EnvPrefix: "PMTEST"})
		require.NoError(t, err)
		require.Equal(t, "env-project", cfg.Gemini.Project)
		require.Equal(t, 9, cfg.Pipeline.PromptsPerRun)
		require.Equal(t, 30*time.Second, cfg.ImageFX.Timeout)
	})

	t.Run("original variable names", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_CLOUD_PROJECT", "alias-project")
		t.Setenv("GOOGLE_CLOUD_LOCATION", "us-central1")
		t.Setenv("GOOGLE_LABS_COOKIE", "  session-cookie  ")

		cfg, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.NoError(t, err)
		require.Equal(t, "alias-project", cfg.Gemini.Project)
		require.Equal(t, "us-central1", cfg.Gemini.Location)
		require.Equal(t, "session-cookie", cfg.ImageFX.Cookie)
	})

	t.Run("prefixed name beats alias", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_CLOUD_PROJECT", "alias-project")
		t.Setenv("PMTEST_GEMINI_PROJECT", "prefixed-project")

		cfg, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.NoError(t, err)
		require.Equal(t, "prefixed-project", cfg.Gemini.Project)
	})

	t.Run("validation errors are joined", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PMTEST_STORE_BACKEND", "mongo")
		t.Setenv("PMTEST_GEMINI_RETRIES", "0")
		t.Setenv("PMTEST_IMAGEFX_COUNT", "0")

		_, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.Error(t, err)
		require.Contains(t, err.Error(), `unknown store backend "mongo"`)
		require.Contains(t, err.Error(), "gemini.retries must be at least 1")
		require.Contains(t, err.Error(), "imagefx.count must be at least 1")
		require.Contains(t, err.Error(), "; ")
	})

	t.Run("images per run is bounded", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PMTEST_PIPELINE_IMAGES_PER_RUN", "10001")

		_, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.Error(t, err)
		require.Contains(t, err.Error(), "pipeline.images_per_run must be at most 10000")
	})

	t.Run("missing config file", func(t *testing.T) {
		_, err := config.LoadWithOptions(config.Options{Path: filepath.Join(t.TempDir(), "absent.yaml")})
		require.Error(t, err)
		require.Contains(t, err.Error(), "load configuration")
	})
}

func TestLoadEnvFile(t *testing.T) {
	t.Run("exports without overriding", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("GOOGLE_CLOUD_PROJECT", "already-set")

		path := filepath.Join(t.TempDir(), ".env")
		require.NoError(t, os.WriteFile(path, []byte(`GOOGLE_CLOUD_PROJECT=from-file
GOOGLE_LABS_COOKIE="cookie-from-file"
`), 0o600))

		loaded, err := config.LoadEnvFile(path)
		require.NoError(t, err)
		require.True(t, loaded)
		require.Equal(t, "already-set", os.Getenv("GOOGLE_CLOUD_PROJECT"))
		require.Equal(t, "cookie-from-file", os.Getenv("GOOGLE_LABS_COOKIE"))

		cfg, err := config.LoadWithOptions(config.Options{EnvPrefix: "PMTEST"})
		require.NoError(t, err)
		require.Equal(t, "cookie-from-file", cfg.ImageFX.Cookie)
	})

	t.Run("missing file is not an error", func(t *testing.T) {
		loaded, err := config.LoadEnvFile(filepath.Join(t.TempDir(), ".env"))
		require.NoError(t, err)
		require.False(t, loaded)

		loaded, err = config.LoadEnvFile("")
		require.NoError(t, err)
		require.False(t, loaded)
	})
}
