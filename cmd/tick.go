package cmd

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var tickCmd = &cobra.Command{
	Use:   "tick",
	Short: "Run one poller pass synchronously",
}

var tickAdvanceCmd = &cobra.Command{
	Use:   "advance",
	Short: "Open every round whose stage date has passed",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		res, err := appInstance.Advancer.Tick(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Advancement tick over %d job(s)\n", res.Jobs)
		printCount(out, "advanced", res.Advanced, color.GreenString)
		printCount(out, "notified", res.Notified, color.GreenString)
		printCount(out, "anomalies", res.Anomalies, color.YellowString)
		printCount(out, "failed", res.Failed, color.RedString)
		return nil
	},
}

var tickReapCmd = &cobra.Command{
	Use:   "reap",
	Short: "Finalize shortlists for jobs past their submission deadline",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		res, err := appInstance.Reaper.Tick(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Reaper tick over %d job(s)\n", res.Jobs)
		printCount(out, "finalized", res.Finalized, color.GreenString)
		printCount(out, "shortlisted", res.Shortlisted, color.GreenString)
		printCount(out, "rejected", res.Rejected, color.YellowString)
		printCount(out, "closed", res.Closed, color.YellowString)
		printCount(out, "failed", res.Failed, color.RedString)
		return nil
	},
}

// printCount colors non-zero counts.
func printCount(w io.Writer, label string, n int, paint func(string, ...interface{}) string) {
	value := fmt.Sprint(n)
	if n > 0 {
		value = paint("%d", n)
	}
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}

func init() {
	tickCmd.AddCommand(tickAdvanceCmd, tickReapCmd)
	rootCmd.AddCommand(tickCmd)
}
