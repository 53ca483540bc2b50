package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show capacity and proxy status",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := RequireClient()
		if err != nil {
			return err
		}

		status, err := client.Status(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Active:   %d/%d (%d total)\n", status.Active, status.Ceiling, status.Total)
		sales := "open"
		if status.Blocked {
			sales = "closed"
		}
		fmt.Fprintf(out, "Sales:    %s\n", sales)

		proxy := "stopped"
		if status.Running {
			proxy = "running"
		}
		fmt.Fprintf(out, "Proxy:    %s\n", proxy)
		fmt.Fprintf(out, "Memory:   %d%%\n", status.UsagePercent)
		if status.Connections != nil {
			fmt.Fprintf(out, "Clients:  %d connections\n", status.Connections.Connections)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
