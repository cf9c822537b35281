package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs <job-id>",
	Short: "Inspect a background ingestion job",
	Long: `Show the current state of an ingestion job.

Examples:
  kindred jobs 6f1c...    # Show details for a job`,
	Args: cobra.ExactArgs(1),
	RunE: runJobs,
}

func init() {
	rootCmd.AddCommand(jobsCmd)
}

func runJobs(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	job, err := apiClient.GetJob(ctx, args[0])
	if err != nil {
		return fmt.Errorf("get job: %w", err)
	}

	fmt.Printf("Job: %s\n", job.JobID)
	fmt.Printf("  Subject: %s\n", job.SubjectKey)
	fmt.Printf("  Status: %s\n", job.Status)
	if stage, ok := job.Progress["stage"].(string); ok && stage != "" {
		fmt.Printf("  Stage: %s\n", stage)
	}
	fmt.Printf("  Created: %s\n", job.CreatedAt.Format(time.RFC3339))
	fmt.Printf("  Updated: %s\n", job.UpdatedAt.Format(time.RFC3339))

	if job.Error != nil && *job.Error != "" {
		fmt.Printf("  Error: %s\n", *job.Error)
	}

	if job.Result != nil {
		fmt.Println("\nResult:")
		fmt.Printf("  Entities added: %v\n", job.Result["entities_added"])
		if posts, ok := job.Result["posts_analyzed"]; ok {
			fmt.Printf("  Posts analyzed: %v\n", posts)
		}
		if length, ok := job.Result["transcript_length"]; ok {
			fmt.Printf("  Transcript length: %v\n", length)
		}
		if failed, ok := job.Result["failed_steps"].([]any); ok && len(failed) > 0 {
			fmt.Printf("\n  Failed steps (%d):\n", len(failed))
			for _, step := range failed {
				fmt.Printf("    - %v\n", step)
			}
		}
	}

	return nil
}
