package app

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
	"github.com/nwhistler/brewfile-analyzer/internal/lock"
	"github.com/nwhistler/brewfile-analyzer/internal/merge"
	"github.com/nwhistler/brewfile-analyzer/internal/output"
)

var (
	syncForce  bool
	syncDryRun bool

	syncCmd = &cobra.Command{
		Use:   "sync",
		Short: "Parse Brewfiles and merge them into the tool database",
		Long: `Parse the project's Brewfiles and reconcile every entry with the tool
database. New tools are inserted with generated descriptions; known
tools are refreshed. Descriptions and examples you edited by hand are
kept unless --force is given.

Split Brewfiles (Brewfile.Brew, Brewfile.Cask, Brewfile.Mas,
Brewfile.Tap) are preferred; a single Brewfile is parsed for all entry
kinds.`,
		Example: `  # Sync the database with the Brewfiles
  brewfile-analyzer sync

  # Show what would be synced without writing
  brewfile-analyzer sync --dry-run

  # Regenerate descriptions even for hand-edited tools
  brewfile-analyzer sync --force`,
		RunE: runSync,
	}
)

func init() {
	syncCmd.Flags().BoolVar(&syncForce, "force", false, "overwrite user-edited descriptions with generated ones")
	syncCmd.Flags().BoolVar(&syncDryRun, "dry-run", false, "parse and report without touching the database")
}

func runSync(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasBrewfiles() {
		return fmt.Errorf("no Brewfiles found under %s", cfg.Root)
	}

	parsed, err := brewfile.Collect(cfg.Brewfiles)
	if err != nil {
		return fmt.Errorf("failed to parse Brewfiles: %w", err)
	}
	parsed = brewfile.Dedupe(parsed)
	infof("Parsed %d entries from %d Brewfile(s)", len(parsed), len(cfg.Brewfiles))

	if syncDryRun {
		for _, rec := range parsed {
			fmt.Printf("%-6s %s\n", rec.Type, rec.Name)
		}
		fmt.Printf("Dry run: %d entries, database untouched\n", len(parsed))
		return nil
	}

	handle, err := lock.Acquire(cfg.LockPath(), "sync")
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			infof("Sync skipped: %v", err)
			return nil
		}
		return err
	}
	defer func() {
		if err := handle.Release(); err != nil {
			warnf("%v", err)
		}
	}()
	if handle.Recovered {
		warnf("Recovered a stale lock from a crashed run")
	}

	db, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	engine := merge.New(db, buildEnricher(cfg))
	report, err := engine.Run(cmd.Context(), parsed, syncForce)
	if err != nil {
		return fmt.Errorf("sync failed: %w", err)
	}

	if report.Rejected > 0 {
		warnf("Skipped %d malformed entries", report.Rejected)
	}
	fmt.Println(output.RenderSyncSummary(
		report.Accepted, report.Rejected, report.Created, report.Updated, report.Preserved))
	return nil
}
