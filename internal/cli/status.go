package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/user/submodsync/pkg/logger"
)

// NewStatusCommand creates the status command.
func NewStatusCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the event cursor and GitHub API rate limit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			out := cmd.OutOrStdout()
			cursor, err := a.ledger.Cursor(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "org:      %s\n", a.cfg.GitHub.Org)
			fmt.Fprintf(out, "cursor:   start_id=%d last_id=%d\n", cursor.StartID, cursor.LastID)
			fmt.Fprintf(out, "push:     %t\n", a.cfg.SuperProject.Push)

			limits, err := a.github.GetRateLimit(cmd.Context())
			if err != nil {
				logger.Warn().Err(err).Msg("Failed to read rate limit")
				fmt.Fprintln(out, "rate:     unavailable")
				return nil
			}
			core := limits.GetCore()
			if core == nil {
				fmt.Fprintln(out, "rate:     unavailable")
				return nil
			}
			fmt.Fprintf(out, "rate:     %d/%d, resets %s\n",
				core.Remaining, core.Limit, core.Reset.UTC().Format("15:04:05"))
			return nil
		},
	}
}
