package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/promptmill/internal/record"
)

// ListOptions holds flags for the list command.
type ListOptions struct {
	*RootOptions
	Status string
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ListOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List stored prompts",
		Long: `List stored prompts in id order, optionally filtered by status.

Example:
  promptmill list --status pending
  promptmill list --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runList(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Status, "status", "", "only list prompts with this status (pending|completed)")

	return cmd
}

func runList(opts *ListOptions, cmd *cobra.Command) error {
	s, err := newSession(opts.RootOptions, cmd)
	if err != nil {
		return err
	}

	var status record.Status
	if opts.Status != "" {
		status, err = record.ParseStatus(opts.Status)
		if err != nil {
			return fail(s.out, ErrCodeInvalidInput, "invalid --status", err)
		}
	}

	st, err := s.openStore()
	if err != nil {
		return err
	}
	defer s.closeStore(st)

	prompts, err := st.List(cmd.Context(), status)
	if err != nil {
		return fail(s.out, ErrCodeStore, "failed to list prompts", err)
	}
	if prompts == nil {
		prompts = []record.Prompt{}
	}

	if err := s.out.Success(promptsView{Prompts: prompts}); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
