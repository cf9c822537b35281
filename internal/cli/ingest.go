package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	ingestMaxPosts int
	ingestReels    bool
	ingestForce    bool
	ingestWait     bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest <handle>",
	Short: "Ingest a profile into the interest graph",
	Long: `Submit a profile for background ingestion. The server scrapes the
profile, captions its images, extracts interests and seeds deep-research
tasks for the strongest ones.

Examples:
  kindred ingest alice_climbs
  kindred ingest alice_climbs --max-posts 20 --wait
  kindred ingest alice_climbs --force   # ignore the ingestion cooldown`,
	Args: cobra.ExactArgs(1),
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().IntVar(&ingestMaxPosts, "max-posts", 0, "posts to analyze (server default when 0)")
	ingestCmd.Flags().BoolVar(&ingestReels, "reels", false, "include reels")
	ingestCmd.Flags().BoolVar(&ingestForce, "force", false, "bypass the ingestion cooldown")
	ingestCmd.Flags().BoolVarP(&ingestWait, "wait", "w", false, "follow job progress until completion")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	accepted, err := apiClient.IngestProfile(ctx, args[0], ingestMaxPosts, ingestReels, ingestForce)
	if err != nil {
		return fmt.Errorf("ingest: %w", err)
	}

	if !ingestWait || !term.IsTerminal(int(os.Stdout.Fd())) {
		fmt.Printf("Job %s queued\n", accepted.JobID)
		fmt.Printf("Use 'kindred jobs %s' to check progress\n", accepted.JobID)
		return nil
	}

	return RunJobProgress(apiClient, accepted.JobID)
}
