package proxy

import (
	"fmt"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/spf13/cobra"
)

// Cmd is the proxy command group.
var Cmd = &cobra.Command{
	Use:   "proxy",
	Short: "Operate the proxy process",
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Re-apply the active credential set and restart the proxy",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		if err := client.RestartProxy(cmd.Context()); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Proxy restarted.")
		return nil
	},
}

var upgradeCmd = &cobra.Command{
	Use:   "upgrade",
	Short: "Pull the proxy image and recreate the container",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		result, err := client.UpgradeProxy(cmd.Context())
		if err != nil {
			return err
		}
		if result.Updated {
			fmt.Fprintf(cmd.OutOrStdout(), "Proxy upgraded to a new %s image.\n", result.Image)
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Proxy recreated, %s already up to date.\n", result.Image)
		}
		return nil
	},
}

func init() {
	Cmd.AddCommand(restartCmd)
	Cmd.AddCommand(upgradeCmd)
}
