package cli

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/user/submodsync/internal/storage"
)

// NewMirrorCommand creates the mirror command group.
func NewMirrorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mirror",
		Short: "Inspect mirror refetch flags",
	}

	var dirtyOnly bool
	list := &cobra.Command{
		Use:   "list",
		Short: "List repositories whose local mirror needs a fetch",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(rootOpts)
			if err != nil {
				return err
			}
			defer a.Close()

			mirrors, err := storage.NewMirrorStore(a.db).List(cmd.Context(), dirtyOnly)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.AppendHeader(table.Row{"REPO", "URL", "DIRTY", "UPDATED"})
			for _, m := range mirrors {
				t.AppendRow(table.Row{m.Repo, m.URL, m.Dirty, m.UpdatedAt.UTC().Format("2006-01-02 15:04:05")})
			}
			t.Render()
			return nil
		},
	}
	list.Flags().BoolVar(&dirtyOnly, "dirty", false, "only show mirrors that need a fetch")
	cmd.AddCommand(list)

	return cmd
}
