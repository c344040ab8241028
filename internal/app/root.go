package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	rootDir string

	// RootCmd is the root command for brewfile-analyzer.
	RootCmd = &cobra.Command{
		Use:   "brewfile-analyzer",
		Short: "Annotated tool database generated from your Brewfiles",
		Long: `brewfile-analyzer parses your Brewfiles (brew, cask, mas, tap) into a
searchable tool database with descriptions and usage examples, served
through a local web UI. Descriptions you edit by hand are preserved
across re-syncs.

Quick Start:
  1. brewfile-analyzer sync       # parse Brewfiles into the database
  2. brewfile-analyzer serve      # browse and edit at http://127.0.0.1:5050
  3. brewfile-analyzer watch      # keep the database in sync as Brewfiles change

Examples:
  # Re-sync after editing a Brewfile
  brewfile-analyzer sync

  # Overwrite hand-edited descriptions with generated ones
  brewfile-analyzer sync --force

  # Check for a new release without applying it
  brewfile-analyzer update --check

  # Show database and update status
  brewfile-analyzer status`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			fmt.Println("brewfile-analyzer: annotated tool database from your Brewfiles")
			fmt.Println()
			if _, err := os.Stat(cfg.DBPath()); os.IsNotExist(err) {
				fmt.Println("Run 'brewfile-analyzer sync' to build the database.")
				fmt.Println("Run 'brewfile-analyzer --help' for the full reference.")
			} else {
				fmt.Println("Tip: Run 'brewfile-analyzer status' to check the database.")
				fmt.Println("     Run 'brewfile-analyzer serve' to browse and edit tools.")
				fmt.Println("     Run 'brewfile-analyzer --help' for all commands.")
			}
			return nil
		},
	}
)

func init() {
	RootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "project root containing Brewfiles (default: $BREWFILE_PROJECT_ROOT or cwd)")

	RootCmd.SuggestionsMinimumDistance = 2

	RootCmd.AddCommand(syncCmd)
	RootCmd.AddCommand(serveCmd)
	RootCmd.AddCommand(watchCmd)
	RootCmd.AddCommand(updateCmd)
	RootCmd.AddCommand(statusCmd)
}

// Execute runs the root command.
func Execute() error {
	return RootCmd.Execute()
}
