// Package serve runs the controller: scheduled loops plus the HTTP API.
package serve

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mtgate/adapter/api"
	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/felixgeelhaar/mtgate/internal/app"
	"github.com/spf13/cobra"
)

var (
	serveAddr       string
	shutdownTimeout time.Duration
	skipConverge    bool
)

// Cmd starts the controller.
var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the controller, its scheduled loops and the HTTP API",
	Long: `Open storage, converge the proxy with the active entitlements,
start the health, expiration and restart loops, and serve the API until
SIGINT or SIGTERM.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cliApp := cli.GetApp()
		if cliApp == nil || cliApp.Config == nil {
			return cli.ErrNotInitialized
		}
		cfg := cliApp.Config
		logger := cli.Logger()
		ctx := cmd.Context()

		container, err := app.NewContainer(ctx, cfg, logger)
		if err != nil {
			return fmt.Errorf("initialize: %w", err)
		}
		defer container.Close()

		if !skipConverge {
			// Failure is alerted; the loops retry.
			_ = container.ConvergeProxy(ctx)
		}

		if err := container.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}

		handler := api.NewHandler(api.HandlerConfig{
			Controller: container.Controller,
			Proxy:      container.ProxyManager,
			Upgrade:    container.UpgradeProxy,
			Alerts:     container.AlertRepo,
			Notifier:   container.Dispatcher,
			Jobs:       container.Scheduler,
			Health:     container.Health,
			Metrics:    container.Metrics.Handler(),
			Links:      container.Links,
			Logger:     logger,
		})

		serverCfg := api.DefaultServerConfig()
		serverCfg.Addr = cfg.APIAddr
		if serveAddr != "" {
			serverCfg.Addr = serveAddr
		}
		serverCfg.Token = cfg.APIToken
		server := api.NewServer(serverCfg, handler, logger)

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start()
		}()

		logger.Info("mtgate serving",
			"addr", serverCfg.Addr,
			"ceiling", cfg.MaxUsers,
			"storage", container.DBDriver,
		)

		select {
		case <-ctx.Done():
			logger.Info("shutdown requested")
		case err := <-errCh:
			if err != nil {
				return fmt.Errorf("api server: %w", err)
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		return nil
	},
}

func init() {
	Cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides API_ADDR)")
	Cmd.Flags().DurationVar(&shutdownTimeout, "shutdown-timeout", 15*time.Second, "grace period for in-flight requests")
	Cmd.Flags().BoolVar(&skipConverge, "no-converge", false, "skip the startup convergence")
}
