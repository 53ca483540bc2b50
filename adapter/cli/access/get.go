package access

import (
	"fmt"
	"text/tabwriter"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get <subscriber-id>",
	Short: "Show a subscriber's entitlement and links",
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

		sub, err := client.GetSubscriber(cmd.Context(), id)
		if err != nil {
			return err
		}
		printSubscriber(cmd.OutOrStdout(), *sub)
		return nil
	},
}

var admitCmd = &cobra.Command{
	Use:   "admit <subscriber-id>",
	Short: "Preview whether a subscriber would be admitted",
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

		decision, err := client.Admission(cmd.Context(), id)
		if err != nil {
			return err
		}
		verdict := "deny"
		if decision.Allow {
			verdict = "allow"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", verdict, decision.Reason)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List active subscribers",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}

		subs, err := client.ListSubscribers(cmd.Context())
		if err != nil {
			return err
		}
		if len(subs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No active subscribers.")
			return nil
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tUSERNAME\tDAYS LEFT\tDEVICES")
		for _, s := range subs {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\n", s.SubscriberID, s.Username, s.DaysLeft, s.MaxConnections)
		}
		return w.Flush()
	},
}
