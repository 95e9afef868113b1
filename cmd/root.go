package cmd

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "quarry",
	Short: "Local document search with hybrid retrieval and chat",
	Long: `Quarry ingests your documents (PDF, Word, Excel, CSV, plain text),
indexes them with embeddings and full-text search, and answers
questions about them with cited sources. Everything runs locally
against a single SQLite database.`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", ".quarry.yml", "config file path")
}
