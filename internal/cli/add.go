package cli

import (
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/promptmill/internal/failure"
	"github.com/roach88/promptmill/internal/record"
)

// NewAddCommand creates the add command.
func NewAddCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "add <text>...",
		Short: "Queue a prompt by hand",
		Long: `Store a prompt as pending without calling Gemini. All arguments are
joined with spaces.

Example:
  promptmill add "a lighthouse on a cliff at dusk, watercolor"`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(rootOpts, strings.Join(args, " "), cmd)
		},
	}
	return cmd
}

func runAdd(opts *RootOptions, text string, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}
	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	id, err := st.Add(cmd.Context(), text)
	if failure.Is(err, failure.KindInvalidInput) {
		return fail(s.out, ErrCodeInvalidInput, "prompt text is empty", err)
	}
	if err != nil {
		return fail(s.out, ErrCodeStore, "failed to store prompt", err)
	}
	s.logger.Debug("prompt added", "prompt_id", id)

	if err := s.out.Success(addedView{ID: id, Text: record.NormalizeText(text)}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
