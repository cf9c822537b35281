package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var interestsCmd = &cobra.Command{
	Use:   "interests <person-id>",
	Short: "List a person's interests, strongest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runInterests,
}

var icebreakerCmd = &cobra.Command{
	Use:   "icebreaker <person-id> <target-id>",
	Short: "Generate a conversation starter from shared interests",
	Args:  cobra.ExactArgs(2),
	RunE:  runIcebreaker,
}

func init() {
	rootCmd.AddCommand(interestsCmd)
	rootCmd.AddCommand(icebreakerCmd)
}

func runInterests(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	interests, err := apiClient.Interests(ctx, args[0])
	if err != nil {
		return fmt.Errorf("interests: %w", err)
	}

	if len(interests) == 0 {
		fmt.Println("No interests recorded")
		return nil
	}

	fmt.Printf("%-24s %-8s %s\n", "TOPIC", "WEIGHT", "SOURCE")
	fmt.Println(strings.Repeat("-", 48))
	for _, interest := range interests {
		fmt.Printf("%-24s %-8.2f %s\n", interest.Topic, interest.Weight, interest.Source)
	}

	return nil
}

func runIcebreaker(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	text, err := apiClient.Icebreaker(ctx, args[0], args[1])
	if err != nil {
		return fmt.Errorf("icebreaker: %w", err)
	}

	fmt.Println(text)
	return nil
}
