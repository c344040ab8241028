package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nwhistler/brewfile-analyzer/internal/output"
	"github.com/nwhistler/brewfile-analyzer/internal/updater"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show database, update, and lock status",
	Long: `Report the state of the installation: detected Brewfiles, tool counts
per type, recently edited tools, the installed version, and whether an
operation currently holds the lock.`,
	Example: `  brewfile-analyzer status`,
	RunE:    runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	fmt.Printf("Project root: %s\n", cfg.Root)
	if len(cfg.Brewfiles) == 0 {
		fmt.Println("Brewfiles:    none detected")
	} else {
		seen := map[string]bool{}
		for _, path := range cfg.Brewfiles {
			if !seen[path] {
				seen[path] = true
				fmt.Printf("Brewfile:     %s\n", path)
			}
		}
	}
	fmt.Println()

	if _, err := os.Stat(cfg.DBPath()); os.IsNotExist(err) {
		fmt.Println("Database:     not created yet (run 'brewfile-analyzer sync')")
	} else {
		db, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		counts, err := db.CountsByType()
		if err != nil {
			return err
		}
		fmt.Print(output.RenderCountsTable(counts))

		recent, err := db.RecentlyEdited(7)
		if err != nil {
			return err
		}
		if len(recent) > 0 {
			fmt.Println()
			fmt.Println("Edited in the last 7 days:")
			fmt.Print(output.RenderRecentTable(recent))
		}
	}
	fmt.Println()

	manifest, err := updater.LoadManifest(cfg.ManifestPath())
	if err != nil {
		return err
	}
	if manifest.Version == "" {
		fmt.Println("Version:      unknown (never self-updated)")
	} else {
		fmt.Printf("Version:      %s (updated %s)\n",
			shortVersion(manifest.Version), manifest.UpdatedAt.Format("2006-01-02"))
	}

	state := updater.LoadState(cfg.StatePath())
	if !state.LastCheck.IsZero() {
		fmt.Printf("Last check:   %s (%s)\n",
			state.LastCheck.Format("2006-01-02 15:04"), state.LastPhase)
	}

	if _, err := os.Stat(cfg.LockPath()); err == nil {
		fmt.Printf("Lock:         held (%s)\n", cfg.LockPath())
	} else {
		fmt.Println("Lock:         free")
	}
	return nil
}
