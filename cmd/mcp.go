package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	mcpserver "github.com/quarry-search/quarry/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server for AI agent integration",
	Long:  `Starts a Model Context Protocol (MCP) server on stdio, exposing document search and job control tools for AI agents.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp()
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.loadIndex(context.Background()); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: could not load vector index: %v\n", err)
			fmt.Fprintln(os.Stderr, "Vector search will be empty. Run `quarry pipeline` first.")
		}

		mcpserver.Version = Version
		fmt.Fprintf(os.Stderr, "quarry MCP server started on stdio (indexed chunks=%d)\n", a.index.Count())

		srv := mcpserver.NewServer(a.engine, a.documents, a.scheduler, a.jobStore)
		return srv.Serve()
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
