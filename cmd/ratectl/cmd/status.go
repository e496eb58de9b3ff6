package cmd

import (
	"github.com/spf13/cobra"

	"rateshop-backend/internal/jobs"
)

var statusCmd = &cobra.Command{
	Use:   "status [job_id]",
	Short: "Show the status of a job",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client, err := newClientFromConfig()
		if err != nil {
			return err
		}
		view, err := client.GetJob(args[0])
		if err != nil {
			return err
		}
		printStatus(cmd, view)
		return nil
	},
}

func printStatus(cmd *cobra.Command, view *jobs.StatusView) {
	cmd.Printf("Job:        %s\n", view.JobID)
	cmd.Printf("Status:     %s\n", view.Status)
	cmd.Printf("Progress:   %d/%d\n", view.ProcessedCount, view.TotalCount)
	if view.Summary != nil {
		cmd.Printf("Priced:     %d\n", view.Summary.Priced)
		cmd.Printf("Orphaned:   %d\n", view.Summary.Orphaned)
		cmd.Printf("Savings:    %.2f\n", view.Summary.TotalSavings)
	}
	if view.Error != "" {
		cmd.Printf("Error:      %s\n", view.Error)
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
