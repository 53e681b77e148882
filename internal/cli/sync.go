package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/user/submodsync/internal/config"
	"github.com/user/submodsync/internal/gitrepo"
	"github.com/user/submodsync/internal/notifier"
	"github.com/user/submodsync/internal/storage"
	"github.com/user/submodsync/internal/superproject"
	"github.com/user/submodsync/pkg/logger"
)

// SyncOptions holds flags for the sync command.
type SyncOptions struct {
	Full    bool
	Branch  string
	NoFetch bool
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SyncOptions{}

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Update submodule pointers of the configured branches",
		Long: `Download new events, then update the submodule pointers of every
configured superproject branch and push the result.

Each branch is handled independently. The command fails if any branch
failed to sync.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd, rootOpts, opts)
		},
	}

	cmd.Flags().BoolVar(&opts.Full, "full", false, "rescan every submodule from its upstream branch")
	cmd.Flags().StringVarP(&opts.Branch, "branch", "b", "", "only sync this superproject branch")
	cmd.Flags().BoolVar(&opts.NoFetch, "no-fetch", false, "do not download events before syncing")

	return cmd
}

func runSync(cmd *cobra.Command, rootOpts *RootOptions, opts *SyncOptions) error {
	ctx := cmd.Context()

	a, err := openApp(rootOpts)
	if err != nil {
		return err
	}
	defer a.Close()

	log := logger.WithStr("run_id", a.runID)

	branches, err := selectBranches(a.cfg.SuperProject.Branches, opts.Branch)
	if err != nil {
		return err
	}

	if !opts.NoFetch {
		if _, err := a.ledger.DownloadEvents(ctx, a.source); err != nil {
			return fmt.Errorf("failed to download events: %w", err)
		}
	}

	var mirror superproject.MirrorMarker
	if a.cfg.Mirror.Enabled {
		mirror = storage.NewMirrorStore(a.db)
	}
	engine := superproject.NewEngine(a.ledger, a.source, a.github, mirror, superproject.Options{
		SuperRepo:  a.cfg.SuperProject.Repo,
		Push:       a.cfg.SuperProject.Push,
		Attempts:   a.cfg.SuperProject.Attempts,
		RetryDelay: a.cfg.SuperProject.RetryDelay,
	})

	user := gitrepo.Signature{Name: a.cfg.Git.UserName, Email: a.cfg.Git.UserEmail}
	out := cmd.OutOrStdout()

	var failures []notifier.Failure
	for _, b := range branches {
		branch := superproject.Branch{
			Name:            b.Branch,
			SubmoduleBranch: b.SubmoduleBranch,
			Queue:           config.QueueName(b.Branch),
		}
		ws := gitrepo.NewCheckout(a.cfg.CheckoutPath(b.Branch), a.cfg.SuperProjectURL(), b.Branch, a.cfg.Git.Timeout, user)

		res, err := engine.Sync(ctx, branch, ws, opts.Full)
		if err != nil {
			fmt.Fprintf(out, "%s: FAILED (%s): %v\n", b.Branch, res.Mode, err)
			failures = append(failures, notifier.Failure{Branch: b.Branch, Mode: string(res.Mode), Err: err})
			continue
		}
		fmt.Fprintf(out, "%s: ok (%s, %d commits, %d conflicts)\n", b.Branch, res.Mode, res.Commits, res.Conflicts)
	}

	if len(failures) == 0 {
		log.Info().Int("branches", len(branches)).Msg("Sync complete")
		return nil
	}

	alerts, err := notifier.NewTelegramNotifier(a.cfg.Telegram.Token, a.cfg.Telegram.ChatID, a.cfg.SuperProject.Repo)
	if err != nil {
		log.Error().Err(err).Msg("Failed to set up failure alerts")
	} else if err := alerts.ReportFailures(a.runID, failures); err != nil {
		log.Error().Err(err).Msg("Failed to send failure alert")
	}

	return fmt.Errorf("%d of %d branches failed to sync", len(failures), len(branches))
}

func selectBranches(all []config.BranchConfig, only string) ([]config.BranchConfig, error) {
	if only == "" {
		return all, nil
	}
	for _, b := range all {
		if b.Branch == only {
			return []config.BranchConfig{b}, nil
		}
	}
	return nil, fmt.Errorf("branch %q is not configured", only)
}
