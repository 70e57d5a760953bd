// twin-storefront simulates the storefront commerce API, the guest
// identity API and the payment gateway for local development and tests.
//
// The gateway is driven over HTTP instead of a hosted widget: a client
// opens a session with POST /payments/initiate and settles it with
// POST /gateway/sessions/{id}/pay, /dismiss or /fail.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/wondertwin-ai/storefront/internal/logging"
	"github.com/wondertwin-ai/storefront/internal/twin"
	"github.com/wondertwin-ai/storefront/internal/twin/core"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "twin-storefront: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := core.ParseFlags("twin-storefront", args)
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Verbose)
	if err != nil {
		return fmt.Errorf("building logger: %w", err)
	}
	defer func() { _ = logger.Sync() }()

	tw, state, err := twin.New(cfg, logger)
	if err != nil {
		return err
	}

	logger.Info("twin-storefront ready",
		zap.Int("port", cfg.Port),
		zap.String("seed_file", cfg.SeedFile),
		zap.Int("products", state.Products.Count()),
		zap.String("currency", cfg.Currency),
		zap.String("key_id", cfg.KeyID),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return tw.Serve(ctx)
}
