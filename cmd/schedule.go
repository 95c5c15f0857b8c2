package cmd

import (
	"fmt"
	"time"

	"stagehand/internal/apihandlers"
	"stagehand/internal/clix"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var scheduleStart string

var scheduleCmd = &cobra.Command{
	Use:   "schedule <job-id>",
	Short: "Compute and store stage dates for a job",
	Long: `Dates every pipeline stage of the job. The first stage falls on the day after
the anchor at scheduling.start_hour; each later stage follows the previous one
by its days_after_prev. The anchor is --start, else the submission deadline,
else now. Running it again with the same anchor gives the same dates.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		jobID, err := clix.ParseJobID(args[0])
		if err != nil {
			return err
		}
		anchor, err := apihandlers.ParseStartDate(scheduleStart, appInstance.Service.Location())
		if err != nil {
			return err
		}

		job, err := appInstance.Service.Schedule(cmd.Context(), jobID, anchor)
		if err != nil {
			return fmt.Errorf("failed to schedule job %s: %w", jobID, err)
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"Order", "Stage", "Threshold", "Days After Prev", "Scheduled"})
		table.SetBorder(true)
		for _, s := range job.Pipeline {
			scheduled := "-"
			if s.ScheduledDate != nil {
				scheduled = s.ScheduledDate.Format(time.RFC3339)
			}
			table.Append([]string{
				fmt.Sprint(s.Order),
				s.RoundName(),
				fmt.Sprintf("%.0f", s.Threshold()),
				fmt.Sprint(s.Gap()),
				scheduled,
			})
		}
		table.Render()
		return nil
	},
}

var eliminateCmd = &cobra.Command{
	Use:   "eliminate <job-id>",
	Short: "Reject every candidate who scored below a round's threshold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		jobID, err := clix.ParseJobID(args[0])
		if err != nil {
			return err
		}
		round, err := clix.ParseRound(cmd.Flags())
		if err != nil {
			return err
		}
		count, err := appInstance.Service.ShortlistStage(cmd.Context(), jobID, round)
		if err != nil {
			return fmt.Errorf("failed to eliminate round %d of job %s: %w", round, jobID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Round %d: %d candidate(s) below threshold.\n", round, count)
		return nil
	},
}

func init() {
	scheduleCmd.Flags().StringVar(&scheduleStart, "start", "", "Anchor date (YYYY-MM-DD or RFC 3339)")
	eliminateCmd.Flags().Int("round", 0, "Round number to evaluate (required)")
	eliminateCmd.MarkFlagRequired("round")

	rootCmd.AddCommand(scheduleCmd, eliminateCmd)
}
