package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"stagehand/internal/clix"
	"stagehand/internal/models"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Manage job definitions",
}

var jobsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List jobs, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		page, err := clix.ParsePagination(cmd.Flags())
		if err != nil {
			return err
		}
		jobs, err := appInstance.Service.ListJobs(cmd.Context(), page.Limit, page.Offset)
		if err != nil {
			return fmt.Errorf("failed to list jobs: %w", err)
		}
		if len(jobs) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No jobs found.")
			return nil
		}

		table := tablewriter.NewWriter(cmd.OutOrStdout())
		table.SetHeader([]string{"ID", "Title", "Status", "Rounds", "Deadline", "Scheduled", "Reaped"})
		table.SetBorder(true)
		for _, j := range jobs {
			deadline := "-"
			if j.SubmissionDeadline != nil {
				deadline = j.SubmissionDeadline.Format(time.RFC3339)
			}
			table.Append([]string{
				j.ID.String(),
				j.Title,
				string(j.Status),
				fmt.Sprint(j.RoundCount()),
				deadline,
				fmt.Sprint(j.SchedulingDone),
				fmt.Sprint(j.AutoRejectionDone),
			})
		}
		table.Render()
		return nil
	},
}

var jobsCreateFile string

var jobsCreateCmd = &cobra.Command{
	Use:   "create --file job.json",
	Short: "Create a job from a JSON definition",
	RunE: func(cmd *cobra.Command, args []string) error {
		appInstance, err := GetAppFromContext(cmd.Context())
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(jobsCreateFile)
		if err != nil {
			return fmt.Errorf("failed to read job definition: %w", err)
		}
		var job models.Job
		if err := json.Unmarshal(raw, &job); err != nil {
			return fmt.Errorf("failed to parse job definition %s: %w", jobsCreateFile, err)
		}
		created, err := appInstance.Service.CreateJob(cmd.Context(), &job)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Created job %s (%d rounds)\n", created.ID, created.RoundCount())
		return nil
	},
}

func init() {
	clix.AddPaginationFlags(jobsListCmd.Flags())
	jobsCreateCmd.Flags().StringVarP(&jobsCreateFile, "file", "f", "", "Path to the JSON job definition (required)")
	jobsCreateCmd.MarkFlagRequired("file")

	jobsCmd.AddCommand(jobsListCmd, jobsCreateCmd)
	rootCmd.AddCommand(jobsCmd)
}
