package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/mikey/phish-scanner/internal/cli"
	"github.com/mikey/phish-scanner/internal/core"
	"github.com/mikey/phish-scanner/internal/di"
	"go.uber.org/zap"
)

func main() {
	flags, args, err := di.ParseFlags(os.Args[1:], os.Stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Run the application
	err = container.Invoke(func(app *cli.App, kv core.KeyValueStore, classifier core.Classifier, logger *zap.Logger) error {
		defer logger.Sync()
		defer func() {
			if err := kv.Close(); err != nil {
				logger.Warn("Failed to close session storage", zap.Error(err))
			}
		}()

		// Close any resources that need closing
		if closer, ok := classifier.(interface{ Close() error }); ok {
			defer closer.Close()
		}

		return app.Run(ctx, args)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if core.RequiresReauthorization(err) {
			fmt.Fprintln(os.Stderr, "Run 'phish-scanner login' to sign in again.")
		}
		os.Exit(1)
	}
}
