package access

import (
	"fmt"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/spf13/cobra"
)

var revokeCmd = &cobra.Command{
	Use:   "revoke <subscriber-id>",
	Short: "Deactivate an entitlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		if _, err := client.Revoke(cmd.Context(), id); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Revoked: %s\n", id)
		return nil
	},
}

var reactivateCmd = &cobra.Command{
	Use:   "reactivate <subscriber-id>",
	Short: "Re-admit an inactive, unexpired entitlement",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		id, err := parseID(args[0])
		if err != nil {
			return err
		}

		sub, err := client.Reactivate(cmd.Context(), id)
		if err != nil {
			return err
		}
		printSubscriber(cmd.OutOrStdout(), *sub)
		return nil
	},
}
