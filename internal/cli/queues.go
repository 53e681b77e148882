package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/user/submodsync/internal/config"
	"github.com/user/submodsync/internal/storage"
)

// NewQueuesCommand creates the queues command group.
func NewQueuesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "queues",
		Short: "Inspect and reset consumer positions",
	}
	cmd.AddCommand(newQueuesListCommand(rootOpts))
	cmd.AddCommand(newQueuesResetCommand(rootOpts))
	return cmd
}

func newQueuesListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List consumer queues and their positions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			cursor, err := a.ledger.Cursor(cmd.Context())
			if err != nil {
				return err
			}
			queues, err := a.ledger.ListQueues(cmd.Context())
			if err != nil {
				return err
			}
			renderQueues(cmd.OutOrStdout(), cursor, queues)
			return nil
		},
	}
}

func newQueuesResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <branch>",
		Short: "Move a branch's queue back to the start of the contiguous run",
		Long: `Move a branch's queue back to the start of the most recent contiguous
run of events, so the next sync replays every event of that run.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			if _, err := selectBranches(a.cfg.SuperProject.Branches, args[0]); err != nil {
				return err
			}
			q, err := a.ledger.OpenQueue(cmd.Context(), config.QueueName(args[0]), storage.EventKindPush)
			if err != nil {
				return err
			}
			if err := q.Reset(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: position %d\n", q.Name(), q.Position())
			return nil
		},
	}
}

func renderQueues(w io.Writer, cursor storage.Cursor, queues []storage.QueueState) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"QUEUE", "KIND", "POSITION", "CONTINUED", "UPDATED"})
	for _, q := range queues {
		t.AppendRow(table.Row{
			q.Name,
			q.Kind,
			q.Position,
			cursor.ContinuedFrom(q.Position),
			q.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		})
	}
	t.AppendSeparator()
	t.AppendFooter(table.Row{"CURSOR", "", fmt.Sprintf("%d..%d", cursor.StartID, cursor.LastID), "", ""})
	t.Render()
}
