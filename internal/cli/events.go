package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/user/submodsync/internal/storage"
)

// NewEventsCommand creates the events command group.
func NewEventsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Inspect and download the event ledger",
	}
	cmd.AddCommand(newEventsDownloadCommand(rootOpts))
	cmd.AddCommand(newEventsListCommand(rootOpts))
	return cmd
}

func newEventsDownloadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "download",
		Short: "Download new events from the organisation event stream",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			cursor, err := a.ledger.DownloadEvents(cmd.Context(), a.source)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "start_id=%d last_id=%d\n", cursor.StartID, cursor.LastID)
			return nil
		},
	}
}

func newEventsListCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the newest stored events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			events, err := a.ledger.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderEvents(cmd.OutOrStdout(), events)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of events to show")
	return cmd
}

func renderEvents(w io.Writer, events []storage.Event) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"ID", "KIND", "REPO", "BRANCH", "BEFORE", "HEAD", "CREATED", "START"})
	for _, ev := range events {
		start := ""
		if ev.SequenceStart {
			start = "*"
		}
		t.AppendRow(table.Row{
			ev.SourceID,
			ev.Kind,
			ev.Repo,
			ev.Branch.String,
			shortHash(ev.BeforeHash),
			shortHash(ev.HeadHash),
			ev.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			start,
		})
	}
	t.Render()
}

func shortHash(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}
