package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/user/submodsync/internal/cli"
)

func main() {
	// Cancel in-flight git and API calls on shutdown signals
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCommand().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
