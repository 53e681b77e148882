// Package cli implements the submodsync command line.
package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/user/submodsync/internal/config"
	"github.com/user/submodsync/internal/github"
	"github.com/user/submodsync/internal/storage"
	"github.com/user/submodsync/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	Verbose    bool
}

// NewRootCommand creates the root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "submodsync",
		Short: "Keep superproject submodules in sync with upstream branches",
		Long: `Keep a superproject's submodule pointers in sync with the branches of
the upstream repositories.

Push events from the organisation's event stream are stored in a local
ledger and replayed against each tracked superproject branch. When the
ledger may have missed events, every submodule is rescanned from its
upstream branch tip instead.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to configuration file")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "debug logging")

	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewEventsCommand(opts))
	cmd.AddCommand(NewQueuesCommand(opts))
	cmd.AddCommand(NewMirrorCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))

	return cmd
}

// app holds what a command needs once configuration is loaded.
type app struct {
	cfg    *config.Config
	db     *storage.Database
	ledger *storage.EventLedger
	github *github.Client
	source *github.EventSource
	runID  string
}

func openApp(opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	debug := opts.Verbose || cfg.Log.Level == "debug"
	if err := logger.Init(debug, cfg.Log.File); err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	db, err := storage.NewDatabase(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	client, err := github.NewClientWithBaseURL(cfg.GitHub.Token, cfg.GitHub.APIURL)
	if err != nil {
		db.Close()
		return nil, err
	}
	client.SetPerPage(cfg.GitHub.PerPage)

	return &app{
		cfg:    cfg,
		db:     db,
		ledger: storage.NewEventLedger(db),
		github: client,
		source: github.NewEventSource(client, cfg.GitHub.Org),
		runID:  uuid.NewString(),
	}, nil
}

func (a *app) Close() error {
	return a.db.Close()
}
