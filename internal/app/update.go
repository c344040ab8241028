package app

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/nwhistler/brewfile-analyzer/internal/updater"
)

var (
	updateCheck     bool
	updateYes       bool
	updateScheduled bool
	updateRepo      string
	updateRef       string
	updateRollback  bool

	updateCmd = &cobra.Command{
		Use:   "update",
		Short: "Update the installation from GitHub",
		Long: `Check the configured GitHub repository for a new revision and apply
it. The current installation is backed up first and the new tree is
swapped in with renames; the database, backups, and local settings are
never touched. A failed apply is rolled back automatically.

Scheduled mode (--scheduled) is meant for cron or launchd: it respects
the configured check interval and only runs if you opted in on first
use.`,
		Example: `  # Check without applying
  brewfile-analyzer update --check

  # Update, answering the first-run prompt with yes
  brewfile-analyzer update --yes

  # Track a fork or branch
  brewfile-analyzer update --repo someone/fork --ref develop

  # Restore the backup taken by the last update
  brewfile-analyzer update --rollback`,
		RunE: runUpdate,
	}
)

func init() {
	updateCmd.Flags().BoolVar(&updateCheck, "check", false, "check for updates without applying")
	updateCmd.Flags().BoolVar(&updateYes, "yes", false, "assume yes for prompts")
	updateCmd.Flags().BoolVar(&updateScheduled, "scheduled", false, "non-interactive mode honoring the check interval")
	updateCmd.Flags().StringVar(&updateRepo, "repo", "", "GitHub repository to update from (default from settings)")
	updateCmd.Flags().StringVar(&updateRef, "ref", "", "branch, tag, or commit to track (default from settings)")
	updateCmd.Flags().BoolVar(&updateRollback, "rollback", false, "restore the backup recorded in the installation manifest")
}

func runUpdate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	u := newUpdater(cfg, updateRepo, updateRef)

	if updateRollback {
		return runRollback(cfg.ManifestPath(), u)
	}

	if updateCheck {
		result, err := u.Check(cmd.Context())
		if err != nil {
			return err
		}
		switch result.Phase {
		case updater.PhaseUpToDate:
			fmt.Printf("Up to date (%s)\n", shortVersion(result.InstalledVersion))
		case updater.PhaseUpdateAvailable:
			fmt.Printf("Update available: %s -> %s\n",
				shortVersion(result.InstalledVersion), shortVersion(result.RemoteVersion))
		}
		return nil
	}

	if updateScheduled {
		proceed, err := scheduledGate(cfg.FirstRunPath(), cfg.StatePath(), cfg.Settings.Update.IntervalHours)
		if err != nil {
			return err
		}
		if !proceed {
			return nil
		}
	} else {
		if err := ensureFirstRunConsent(cfg.FirstRunPath(), cfg.Settings.Update.Repo, cfg.Settings.Update.IntervalHours); err != nil {
			return err
		}
	}

	result, err := u.Run(cmd.Context())
	if err != nil {
		return err
	}

	switch result.Phase {
	case updater.PhaseApplied:
		fmt.Printf("Updated to %s\n", shortVersion(result.RemoteVersion))
		fmt.Println("Restart any running 'serve' or 'watch' process to pick up the new version.")
	case updater.PhaseUpToDate:
		fmt.Printf("Up to date (%s)\n", shortVersion(result.RemoteVersion))
	case updater.PhaseSkipped:
		fmt.Println("Another operation is in progress; update skipped.")
	}
	return nil
}

// scheduledGate decides whether a scheduled run may proceed: the user
// must have opted in, and the check interval must have elapsed.
func scheduledGate(firstRunPath, statePath string, intervalHours int) (bool, error) {
	marker, err := updater.LoadFirstRun(firstRunPath)
	if err != nil {
		return false, err
	}
	if marker == nil || !marker.Enabled {
		infof("Scheduled updates not enabled; run 'brewfile-analyzer update' once to opt in")
		return false, nil
	}

	state := updater.LoadState(statePath)
	interval := time.Duration(intervalHours) * time.Hour
	now := time.Now()
	if !state.CheckDue(interval, now) {
		infof("Checked %s ago, next check after %s", now.Sub(state.LastCheck).Round(time.Minute), interval)
		return false, nil
	}
	return true, nil
}

// ensureFirstRunConsent prompts once, records the answer, and points
// the user at their scheduler when they opt in.
func ensureFirstRunConsent(firstRunPath, repo string, intervalHours int) error {
	marker, err := updater.LoadFirstRun(firstRunPath)
	if err != nil {
		return err
	}
	if marker != nil {
		return nil
	}

	enabled := updateYes
	if !updateYes {
		enabled, err = updater.PromptFirstRun(os.Stdin, os.Stdout, repo)
		if err != nil {
			return err
		}
	}
	if err := updater.RecordFirstRun(firstRunPath, enabled); err != nil {
		return err
	}

	if enabled {
		registrar := updater.LogRegistrar{Logf: infof}
		if err := registrar.Register(time.Duration(intervalHours) * time.Hour); err != nil {
			return err
		}
	}
	return nil
}

func runRollback(manifestPath string, u *updater.Updater) error {
	manifest, err := updater.LoadManifest(manifestPath)
	if err != nil {
		return err
	}
	if manifest.BackupPath == "" {
		return fmt.Errorf("no backup recorded in the installation manifest")
	}

	if err := u.RestoreBackup(manifest.BackupPath); err != nil {
		return err
	}
	fmt.Printf("Restored backup from %s\n", manifest.BackupPath)
	return nil
}

func shortVersion(v string) string {
	if v == "" {
		return "unknown"
	}
	if len(v) > 12 {
		return v[:12]
	}
	return v
}
