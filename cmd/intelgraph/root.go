package main

import (
	"context"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "intelgraph",
	Short: "Threat intelligence ingestion and retrieval engine",
	Long: `intelgraph ingests versioned threat intelligence corpora into a dual
store (text+vector and graph), serves hybrid lexical+semantic search,
bounded graph neighborhood queries, and retrieval-grounded chat.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to YAML config file (defaults apply when omitted)")

	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(graphCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(statusCmd)
}

// Execute runs the root command with the given context.
func Execute(ctx context.Context) error {
	return rootCmd.ExecuteContext(ctx)
}
