// Package config loads promptmill settings from an optional YAML file and the
// environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/roach88/promptmill/internal/store"
)

// DefaultEnvPrefix prefixes every bound environment variable.
const DefaultEnvPrefix = "PROMPTMILL"

// DefaultEnvFile is the dotenv file read when none is named.
const DefaultEnvFile = ".env"

// Config captures runtime configuration for a pipeline run.
type Config struct {
	Gemini   GeminiConfig   `mapstructure:"gemini"`
	ImageFX  ImageFXConfig  `mapstructure:"imagefx"`
	Store    StoreConfig    `mapstructure:"store"`
	Examples ExamplesConfig `mapstructure:"examples"`
	Pipeline PipelineConfig `mapstructure:"pipeline"`
	Metrics  MetricsConfig  `mapstructure:"metrics"`
}

// GeminiConfig selects the text model and its retry policy.
type GeminiConfig struct {
	Project         string        `mapstructure:"project"`
	Location        string        `mapstructure:"location"`
	Model           string        `mapstructure:"model"`
	Temperature     float32       `mapstructure:"temperature"`
	MaxOutputTokens int32         `mapstructure:"max_output_tokens"`
	Retries         int           `mapstructure:"retries"`
	RetryDelay      time.Duration `mapstructure:"retry_delay"`
}

// ImageFXConfig locates the image tool.
type ImageFXConfig struct {
	Runtime   string        `mapstructure:"runtime"`
	Tool      string        `mapstructure:"tool"`
	OutputDir string        `mapstructure:"output_dir"`
	Cookie    string        `mapstructure:"cookie"`
	Count     int           `mapstructure:"count"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// StoreConfig selects the record store backend.
type StoreConfig struct {
	Backend string `mapstructure:"backend"`
	Path    string `mapstructure:"path"`
}

// ExamplesConfig locates the example pool and its cycle queue.
type ExamplesConfig struct {
	PoolPath  string `mapstructure:"pool_path"`
	QueuePath string `mapstructure:"queue_path"`
}

// PipelineConfig sizes each run.
type PipelineConfig struct {
	PromptsPerRun int `mapstructure:"prompts_per_run"`
	ImagesPerRun  int `mapstructure:"images_per_run"`
}

// MetricsConfig controls the Prometheus textfile export.
type MetricsConfig struct {
	Textfile string `mapstructure:"textfile"`
}

// Options customises how configuration should be loaded.
type Options struct {
	Path      string
	EnvPrefix string
}

// Load parses configuration from YAML and environment variables.
func Load(path string) (*Config, error) {
	return LoadWithOptions(Options{Path: path, EnvPrefix: DefaultEnvPrefix})
}

// LoadWithOptions provides additional control for tests.
func LoadWithOptions(opts Options) (*Config, error) {
	if opts.EnvPrefix == "" {
		opts.EnvPrefix = DefaultEnvPrefix
	}
	prefix := strings.ToUpper(opts.EnvPrefix)

	v := viper.New()
	v.SetEnvPrefix(prefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	for _, binding := range []struct {
		key     string
		aliases []string
	}{
		{key: "gemini.project", aliases: []string{"GOOGLE_CLOUD_PROJECT"}},
		{key: "gemini.location", aliases: []string{"GOOGLE_CLOUD_LOCATION"}},
		{key: "gemini.model"},
		{key: "gemini.temperature"},
		{key: "gemini.max_output_tokens"},
		{key: "gemini.retries"},
		{key: "gemini.retry_delay"},
		{key: "imagefx.runtime"},
		{key: "imagefx.tool"},
		{key: "imagefx.output_dir"},
		{key: "imagefx.cookie", aliases: []string{"GOOGLE_LABS_COOKIE"}},
		{key: "imagefx.count"},
		{key: "imagefx.timeout"},
		{key: "store.backend"},
		{key: "store.path"},
		{key: "examples.pool_path"},
		{key: "examples.queue_path"},
		{key: "pipeline.prompts_per_run"},
		{key: "pipeline.images_per_run"},
		{key: "metrics.textfile"},
	} {
		if len(binding.aliases) == 0 {
			if err := v.BindEnv(binding.key); err != nil {
				return nil, fmt.Errorf("bind env %s: %w", binding.key, err)
			}
			continue
		}
		// Explicit names disable the prefix, so the prefixed name is listed
		// first to keep precedence over the alias.
		primary := prefix + "_" + strings.ToUpper(strings.ReplaceAll(binding.key, ".", "_"))
		args := append([]string{binding.key, primary}, binding.aliases...)
		if err := v.BindEnv(args...); err != nil {
			return nil, fmt.Errorf("bind env %s: %w", binding.key, err)
		}
	}

	if opts.Path != "" {
		v.SetConfigFile(opts.Path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("load configuration: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode configuration: %w", err)
	}

	normaliseConfig(&cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gemini.model", "gemini-2.0-flash")
	v.SetDefault("gemini.temperature", 0.9)
	v.SetDefault("gemini.max_output_tokens", 250)
	v.SetDefault("gemini.retries", 3)
	v.SetDefault("gemini.retry_delay", "5s")
	v.SetDefault("imagefx.runtime", "node")
	v.SetDefault("imagefx.tool", "imageFX-api/dist/cli.js")
	v.SetDefault("imagefx.output_dir", "images")
	v.SetDefault("imagefx.count", 1)
	v.SetDefault("imagefx.timeout", "5m")
	v.SetDefault("store.backend", string(store.BackendJSON))
	v.SetDefault("examples.pool_path", "examples.json")
	v.SetDefault("examples.queue_path", "example_queue.json")
	v.SetDefault("pipeline.prompts_per_run", 5)
	v.SetDefault("pipeline.images_per_run", 5)
}

func normaliseConfig(cfg *Config) {
	cfg.Store.Backend = strings.ToLower(strings.TrimSpace(cfg.Store.Backend))
	if cfg.Store.Path == "" {
		switch store.Backend(cfg.Store.Backend) {
		case store.BackendSQLite:
			cfg.Store.Path = "prompts.db"
		default:
			cfg.Store.Path = "prompts.json"
		}
	}
	cfg.ImageFX.Cookie = strings.TrimSpace(cfg.ImageFX.Cookie)
}

func validate(cfg Config) error {
	var errs []string

	if _, err := store.ParseBackend(cfg.Store.Backend); err != nil {
		errs = append(errs, err.Error())
	}
	if cfg.Gemini.Retries < 1 {
		errs = append(errs, "gemini.retries must be at least 1")
	}
	if cfg.Gemini.RetryDelay < 0 {
		errs = append(errs, "gemini.retry_delay must not be negative")
	}
	if cfg.Gemini.Temperature <= 0 || cfg.Gemini.Temperature > 2 {
		errs = append(errs, "gemini.temperature must be in (0, 2]")
	}
	if cfg.Gemini.MaxOutputTokens < 1 {
		errs = append(errs, "gemini.max_output_tokens must be positive")
	}
	if cfg.ImageFX.Tool == "" {
		errs = append(errs, "imagefx.tool is required")
	}
	if cfg.ImageFX.OutputDir == "" {
		errs = append(errs, "imagefx.output_dir is required")
	}
	if cfg.ImageFX.Count < 1 {
		errs = append(errs, "imagefx.count must be at least 1")
	}
	if cfg.ImageFX.Timeout <= 0 {
		errs = append(errs, "imagefx.timeout must be positive")
	}
	if cfg.Examples.PoolPath == "" {
		errs = append(errs, "examples.pool_path is required")
	}
	if cfg.Examples.QueuePath == "" {
		errs = append(errs, "examples.queue_path is required")
	}
	if cfg.Pipeline.PromptsPerRun < 0 {
		errs = append(errs, "pipeline.prompts_per_run must not be negative")
	}
	if cfg.Pipeline.ImagesPerRun < 0 {
		errs = append(errs, "pipeline.images_per_run must not be negative")
	}
	if cfg.Pipeline.ImagesPerRun > store.MaxExclude {
		errs = append(errs, fmt.Sprintf("pipeline.images_per_run must be at most %d", store.MaxExclude))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}

	return nil
}

// LoadEnvFile exports the variables in a dotenv file to the process
// environment. Variables already set are left untouched. A missing file is
// reported as loaded=false with no error.
func LoadEnvFile(path string) (loaded bool, err error) {
	if path == "" {
		return false, nil
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		return false, fmt.Errorf("load env file %s: %w", path, err)
	}

	for _, key := range v.AllKeys() {
		name := strings.ToUpper(key)
		if _, set := os.LookupEnv(name); set {
			continue
		}
		if err := os.Setenv(name, v.GetString(key)); err != nil {
			return false, fmt.Errorf("set %s: %w", name, err)
		}
	}
	return true, nil
}
