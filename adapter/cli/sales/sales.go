package sales

import (
	"fmt"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/spf13/cobra"
)

// Cmd is the sales command group.
var Cmd = &cobra.Command{
	Use:   "sales",
	Short: "Open or close new sales",
	Long: `Closing sales rejects new subscribers while renewals of active
subscribers keep working.`,
}

var blockCmd = &cobra.Command{
	Use:   "block",
	Short: "Close new sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSales(cmd, true)
	},
}

var unblockCmd = &cobra.Command{
	Use:   "unblock",
	Short: "Reopen new sales",
	RunE: func(cmd *cobra.Command, args []string) error {
		return setSales(cmd, false)
	},
}

func setSales(cmd *cobra.Command, blocked bool) error {
	client, err := cli.RequireClient()
	if err != nil {
		return err
	}
	blocked, err = client.SetSales(cmd.Context(), blocked)
	if err != nil {
		return err
	}
	if blocked {
		fmt.Fprintln(cmd.OutOrStdout(), "Sales closed.")
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), "Sales open.")
	}
	return nil
}

func init() {
	Cmd.AddCommand(blockCmd)
	Cmd.AddCommand(unblockCmd)
}
