package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/felixgeelhaar/mtgate/adapter/cli/access"
	"github.com/felixgeelhaar/mtgate/adapter/cli/alerts"
	"github.com/felixgeelhaar/mtgate/adapter/cli/jobs"
	"github.com/felixgeelhaar/mtgate/adapter/cli/proxy"
	"github.com/felixgeelhaar/mtgate/adapter/cli/sales"
	"github.com/felixgeelhaar/mtgate/adapter/cli/serve"
	"github.com/felixgeelhaar/mtgate/pkg/config"
	"github.com/felixgeelhaar/mtgate/pkg/observability"
)

func main() {
	// Cancelled on SIGINT/SIGTERM; serve shuts down gracefully from there.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logger := observability.NewLogger(observability.LogConfigFor(cfg.AppEnv, cfg.LogLevel, cfg.LogFormat, cli.Version))
	cli.SetLogger(logger)
	cli.SetApp(cli.NewApp(cfg))

	cli.AddCommand(serve.Cmd)
	cli.AddCommand(access.Cmd)
	cli.AddCommand(proxy.Cmd)
	cli.AddCommand(sales.Cmd)
	cli.AddCommand(alerts.Cmd)
	cli.AddCommand(jobs.Cmd)

	cli.Execute(ctx)
}
