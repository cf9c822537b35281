// Package cli provides the command-line interface for kindred.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/kindredhq/kindred/internal/client"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	serverURL string

	apiClient *client.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "kindred",
	Short: "Interest-graph ingestion and matching",
	Long: `Kindred ingests a person's public social content, extracts their
interests into a graph, and matches people who share them.

Ingestion runs as background jobs on the server; the CLI submits jobs,
follows their progress, and queries the accumulated graph.`,
	Version: Version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		apiClient = client.New(serverURL)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "server URL (default $KINDRED_SERVER_URL or http://localhost:8486)")
}
