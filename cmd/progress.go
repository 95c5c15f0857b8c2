package cmd

import (
	"fmt"
	"strings"

	"stagehand/internal/clix"
	"stagehand/internal/models"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var progressCmd = &cobra.Command{
	Use:   "progress <job-id>",
	Short: "Show every candidate's progress through a job's pipeline",
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
		progress, err := appInstance.Service.PipelineProgress(cmd.Context(), jobID)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%s (%s), %d round(s)\n", progress.Job.Title, progress.Job.Status, progress.Job.RoundCount())
		if len(progress.Records) == 0 {
			fmt.Fprintln(out, "No candidates in the pipeline yet.")
			return nil
		}

		table := tablewriter.NewWriter(out)
		table.SetHeader([]string{"Rank", "Candidate", "Score", "Status", "Rounds"})
		table.SetBorder(true)
		table.SetRowLine(true)
		for _, rec := range progress.Records {
			rank := "-"
			if rec.Rank != nil {
				rank = fmt.Sprint(*rec.Rank)
			}
			table.Append([]string{
				rank,
				rec.CandidateName,
				fmt.Sprintf("%.1f", rec.CandidateScore),
				string(rec.Status),
				roundSummary(rec.Rounds),
			})
		}
		table.Render()
		return nil
	},
}

// roundSummary renders rounds as "1:completed(82) 2:in_progress 3:pending".
func roundSummary(rounds []models.ProgressRound) string {
	parts := make([]string, 0, len(rounds))
	for _, r := range rounds {
		s := fmt.Sprintf("%d:%s", r.RoundNumber, r.Status)
		if r.Score != nil {
			s += fmt.Sprintf("(%.0f)", *r.Score)
		}
		switch r.Status {
		case models.RoundStatusCompleted:
			if r.Passed != nil && !*r.Passed {
				s = color.RedString(s)
			} else {
				s = color.GreenString(s)
			}
		case models.RoundStatusSkipped:
			s = color.YellowString(s)
		}
		parts = append(parts, s)
	}
	return strings.Join(parts, " ")
}

func init() {
	rootCmd.AddCommand(progressCmd)
}
