// Package main is trackerctl, the operator command line for the payment tracker.
package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/creatorpay/tracker/config"
	"github.com/creatorpay/tracker/internal/cli"
	"github.com/creatorpay/tracker/internal/payments"
	"github.com/creatorpay/tracker/internal/resolver"
	"github.com/creatorpay/tracker/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "load config:", err)
		os.Exit(2)
	}
	logger := zap.NewNop()

	env := &cli.Env{
		Config: cfg,
		OpenStore: func(ctx context.Context) (payments.Store, func(), error) {
			return payments.Open(ctx, cfg, logger)
		},
		Resolver: resolver.New(resolver.WithTimeout(cfg.Bot.ResolveTimeout())),
	}
	if cfg.Store.Backend == "postgres" {
		env.Migrate = func(ctx context.Context) error {
			pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), logger)
			if err != nil {
				return err
			}
			defer pool.Close()
			return database.Migrate(ctx, pool)
		}
	}

	if err := cli.NewRootCommand(env).ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
