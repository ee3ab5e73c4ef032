package cli

import (
	"context"
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/promptmill/internal/config"
	"github.com/roach88/promptmill/internal/generator"
	"github.com/roach88/promptmill/internal/pipeline"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose    bool
	Format     string // "text" | "json" | "yaml"
	ConfigPath string
	EnvFile    string

	// NewTextModel builds the text model from configuration. Tests replace
	// it with a fake; nil means the Gemini client.
	NewTextModel func(ctx context.Context, cfg config.GeminiConfig) (generator.TextModel, error)

	// RunIDs overrides the run id generator (for testing).
	RunIDs pipeline.RunIDGenerator
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command for the promptmill CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "promptmill",
		Short: "promptmill - prompt generation and image rendering pipeline",
		Long: `promptmill generates new image prompts from a pool of examples with Gemini,
keeps them in a persistent queue, and renders pending prompts through the
imageFX command line tool.

Each run has two phases. Phase 1 generates prompts and stores them as
pending. Phase 2 renders pending prompts and marks them completed once an
image file appears.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to YAML configuration file")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", config.DefaultEnvFile, "dotenv file exported before loading configuration")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewGenerateCommand(opts))
	cmd.AddCommand(NewDispatchCommand(opts))
	cmd.AddCommand(NewAddCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewPoolCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
