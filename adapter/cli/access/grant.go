package access

import (
	"fmt"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	accessApp "github.com/felixgeelhaar/mtgate/internal/access/application"
	accessDomain "github.com/felixgeelhaar/mtgate/internal/access/domain"
	"github.com/spf13/cobra"
)

var (
	grantPlan           string
	grantKind           string
	grantDays           int
	grantMaxConnections int
	grantUsername       string
)

var grantCmd = &cobra.Command{
	Use:   "grant <subscriber-id>",
	Short: "Grant or renew an entitlement",
	Long: `Admit a subscriber or extend an active entitlement, then apply
the new credential set to the proxy.

Examples:
  mtgate access grant 123456 --plan week
  mtgate access grant 123456 --kind trial
  mtgate access grant 123456 --days 3 --max-connections 2`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		resp, err := client.Grant(cmd.Context(), accessApp.GrantRequest{
			SubscriberID:   id,
			Username:       grantUsername,
			Kind:           accessDomain.GrantKind(grantKind),
			Plan:           grantPlan,
			Days:           grantDays,
			MaxConnections: grantMaxConnections,
		})
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		printSubscriber(out, resp.Subscriber)
		if !resp.Converged {
			fmt.Fprintf(out, "Warning:    %s\n", resp.Warning)
		}
		return nil
	},
}

func init() {
	grantCmd.Flags().StringVar(&grantPlan, "plan", "", "plan id (day, week, month)")
	grantCmd.Flags().StringVar(&grantKind, "kind", string(accessDomain.KindPaid), "grant kind (paid, trial)")
	grantCmd.Flags().IntVar(&grantDays, "days", 0, "days to grant when no plan is given")
	grantCmd.Flags().IntVar(&grantMaxConnections, "max-connections", 0, "device limit when no plan is given")
	grantCmd.Flags().StringVar(&grantUsername, "username", "", "subscriber's chat username")
}
