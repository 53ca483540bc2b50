package jobs

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/felixgeelhaar/mtgate/adapter/cli"
	"github.com/spf13/cobra"
)

// Cmd is the jobs command group.
var Cmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and trigger scheduled jobs",
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List scheduled jobs and their last runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}

		stats, err := client.Jobs(cmd.Context())
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "JOB\tSCHEDULE\tRUNS\tFAILURES\tLAST RUN\tNEXT RUN\tLAST ERROR")
		for _, st := range stats {
			fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%s\t%s\t%s\n",
				st.Name, st.Schedule, st.Runs, st.Failures,
				formatTime(st.LastRun), formatTime(st.NextRun), st.LastError)
		}
		return w.Flush()
	},
}

var runCmd = &cobra.Command{
	Use:   "run <job>",
	Short: "Run a job now and wait for it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := cli.RequireClient()
		if err != nil {
			return err
		}
		if err := client.RunJob(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Job %s completed.\n", args[0])
		return nil
	},
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04")
}

func init() {
	Cmd.AddCommand(listCmd)
	Cmd.AddCommand(runCmd)
}
