package cmd

import (
	"github.com/spf13/cobra"

	"github.com/quarry-search/quarry/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize quarry configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to configure quarry and generates a .quarry.yml file.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
