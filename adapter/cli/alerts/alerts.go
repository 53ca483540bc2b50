package alerts

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	alertingDomain "github.com/felixgeelhaar/mtgate/internal/alerting/domain"
	"github.com/felixgeelhaar/mtgate/internal/alerting/infrastructure/broker"
	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/eventbus"
	"github.com/spf13/cobra"
)

var (
	listLimit       int
	watchSeverities []string
)

// Cmd is the alerts command group.
var Cmd = &cobra.Command{
	Use:   "alerts",
	Short: "Read operator alerts",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "Show the newest journaled alerts",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}

		alerts, err := client.RecentAlerts(cmd.Context(), listLimit)
		if err != nil {
			return err
		}
		if len(alerts) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No alerts.")
			return nil
		}
		for _, a := range alerts {
			fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s: %s\n",
				a.CreatedAt.Local().Format("2006-01-02 15:04:05"),
				strings.ToUpper(string(a.Severity)),
				a.Kind,
				a.Message,
			)
		}
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Stream alerts from RabbitMQ until interrupted",
	Long: `Subscribe to the alert topic on RabbitMQ and print alerts as the
serve process publishes them. Requires RABBITMQ_URL.

Examples:
  mtgate alerts watch
  mtgate alerts watch --severity critical --severity warning`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app := cli.GetApp()
		if app == nil || app.Config == nil {
			return cli.ErrNotInitialized
		}
		if app.Config.RabbitMQURL == "" {
			return errors.New("alerts watch requires RABBITMQ_URL")
		}

		severities, err := parseSeverities(watchSeverities)
		if err != nil {
			return err
		}

		logger := cli.Logger()
		consumer, err := eventbus.NewRabbitMQConsumer(eventbus.RabbitMQConsumerConfig{
			URL:    app.Config.RabbitMQURL,
			Logger: logger,
		}, eventbus.NewConsumerRegistry(logger))
		if err != nil {
			return err
		}
		defer consumer.Close()

		consumer.RegisterConsumer(broker.NewPrinter(cmd.OutOrStdout(), severities...))

		err = consumer.Start(cmd.Context())
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func parseSeverities(values []string) ([]alertingDomain.Severity, error) {
	var out []alertingDomain.Severity
	for _, v := range values {
		sev := alertingDomain.Severity(strings.ToLower(strings.TrimSpace(v)))
		switch sev {
		case alertingDomain.SeverityInfo, alertingDomain.SeverityWarning, alertingDomain.SeverityCritical:
			out = append(out, sev)
		default:
			return nil, fmt.Errorf("unknown severity %q", v)
		}
	}
	return out, nil
}

func init() {
	listCmd.Flags().IntVarP(&listLimit, "limit", "n", 20, "number of alerts to show")
	watchCmd.Flags().StringSliceVar(&watchSeverities, "severity", nil, "only show these severities (info, warning, critical)")

	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(watchCmd)
}
