package cli

import (
	"github.com/spf13/cobra"
)

// NewPoolCommand creates the pool command.
func NewPoolCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pool",
		Short: "Show the example pool and the current cycle",
		Long: `Load and validate the example pool, then show how many examples are
left before the pool is reshuffled. Does not draw an example.

Example:
  promptmill pool --format yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPool(rootOpts, cmd)
		},
	}
	return cmd
}

func runPool(opts *RootOptions, cmd *cobra.Command) error {
	s, err := newSession(opts, cmd)
	if err != nil {
		return err
	}

	c, err := s.loadCycler()
	if err != nil {
		return fail(s.out, ErrCodePool, "failed to load example pool", err)
	}

	view := poolView{Size: c.Pool().Len(), Remaining: c.Remaining()}
	if err := s.out.Success(view); err != nil {
		return WrapExitError(ExitCommandError, "write output", err)
	}
	return nil
}
