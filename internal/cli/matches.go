package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var matchesLimit int

var matchesCmd = &cobra.Command{
	Use:   "matches <person-id>",
	Short: "List people ranked by shared-interest affinity",
	Args:  cobra.ExactArgs(1),
	RunE:  runMatches,
}

func init() {
	matchesCmd.Flags().IntVarP(&matchesLimit, "limit", "l", 10, "maximum matches to return")
	rootCmd.AddCommand(matchesCmd)
}

func runMatches(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	matches, err := apiClient.Matches(ctx, args[0], matchesLimit)
	if err != nil {
		return fmt.Errorf("matches: %w", err)
	}

	if len(matches) == 0 {
		fmt.Println("No matches found")
		return nil
	}

	fmt.Printf("%-20s %-8s %s\n", "PERSON", "AFFINITY", "SHARED TOPICS")
	fmt.Println(strings.Repeat("-", 64))
	for _, match := range matches {
		fmt.Printf("%-20s %-8.2f %s\n", match.Handle, match.Affinity, strings.Join(match.SharedTopics, ", "))
	}

	return nil
}
