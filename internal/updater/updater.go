// Package updater implements self-updating from a GitHub repository:
// resolve the remote revision, stage the new tree next to the live
// installation, verify it, back up the current tree, and swap the new
// one in with renames. Preserved paths (the database, backups, local
// markers) are never touched by a swap.
package updater

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/lock"
)

// Phase is where an update run ended up. Runs move strictly forward
// through the pipeline; any failure resolves to Failed or RolledBack.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseChecking        Phase = "checking"
	PhaseUpToDate        Phase = "up-to-date"
	PhaseUpdateAvailable Phase = "update-available"
	PhaseFetching        Phase = "fetching"
	PhaseVerifying       Phase = "verifying"
	PhaseStaged          Phase = "staged"
	PhaseApplying        Phase = "applying"
	PhaseApplied         Phase = "applied"
	PhaseFailed          Phase = "failed"
	PhaseRolledBack      Phase = "rolled-back"
	PhaseSkipped         Phase = "skipped"
)

// Failure taxonomy. Callers branch on these with errors.Is; everything
// else is an environment error (permissions, disk).
var (
	ErrFetch        = errors.New("update fetch failed")
	ErrVerification = errors.New("update verification failed")
	ErrApply        = errors.New("update apply failed")
	ErrRollback     = errors.New("update rollback failed")
)

// workDirPrefix names the scratch directory created beside the live
// installation during an apply. A leftover one means a previous apply
// was interrupted.
const workDirPrefix = ".brewfile-update-"

// Options configures an Updater. LiveDir is the installation root the
// swap operates on; PreservedEntries are top-level names inside it that
// updates never replace or remove.
type Options struct {
	LiveDir      string
	ManifestPath string
	LockPath     string
	StatePath    string
	BackupsDir   string

	Remote *Remote

	// RequiredEntries must exist at the top of a staged tree for it to
	// pass verification.
	RequiredEntries []string

	// PreservedEntries are top-level names the swap skips on both the
	// staged and the live side.
	PreservedEntries []string

	Logf func(format string, args ...any)
}

// Result describes the outcome of a Check or Run.
type Result struct {
	Phase            Phase
	InstalledVersion string
	RemoteVersion    string
	BackupPath       string
	Recovered        bool
}

// Updater drives the update pipeline.
type Updater struct {
	opts Options
	now  func() time.Time
}

// New builds an Updater. Remote is required.
func New(opts Options) *Updater {
	if opts.Logf == nil {
		opts.Logf = func(string, ...any) {}
	}
	return &Updater{opts: opts, now: time.Now}
}

// Check resolves the remote revision and compares it with the installed
// one. It takes no lock and mutates nothing.
func (u *Updater) Check(ctx context.Context) (*Result, error) {
	result := &Result{Phase: PhaseChecking}

	manifest, err := LoadManifest(u.opts.ManifestPath)
	if err != nil {
		return result, err
	}
	result.InstalledVersion = manifest.Version

	remote, err := u.opts.Remote.LatestRevision(ctx)
	if err != nil {
		result.Phase = PhaseFailed
		return result, fmt.Errorf("%w: %v", ErrFetch, err)
	}
	result.RemoteVersion = remote

	if remote == manifest.Version {
		result.Phase = PhaseUpToDate
	} else {
		result.Phase = PhaseUpdateAvailable
	}
	return result, nil
}

// Run executes the full pipeline: check, fetch, verify, stage, apply.
// A busy lock resolves to PhaseSkipped without error; the run that
// holds the lock is doing the work. Every other exit path releases the
// lock.
func (u *Updater) Run(ctx context.Context) (*Result, error) {
	result := &Result{Phase: PhaseIdle}

	handle, err := lock.Acquire(u.opts.LockPath, "self-update")
	if err != nil {
		if errors.Is(err, lock.ErrBusy) {
			u.opts.Logf("Update skipped: %v", err)
			result.Phase = PhaseSkipped
			return result, nil
		}
		return result, err
	}
	defer func() {
		if releaseErr := handle.Release(); releaseErr != nil {
			u.opts.Logf("WARNING: %v", releaseErr)
		}
	}()
	if handle.Recovered {
		result.Recovered = true
		u.opts.Logf("Recovered a stale update lock from a crashed run")
	}

	// A leftover work directory means an earlier apply was interrupted
	// between swap and manifest write. Roll it back before trusting the
	// live tree, even if the version check would say up to date.
	if err := u.recoverInterrupted(); err != nil {
		result.Phase = PhaseFailed
		u.recordState(result, err)
		return result, err
	}

	recovered := result.Recovered
	result, err = u.Check(ctx)
	result.Recovered = recovered
	if err != nil {
		u.recordState(result, err)
		return result, err
	}
	if result.Phase == PhaseUpToDate {
		u.opts.Logf("Already up to date (%s)", shortRev(result.RemoteVersion))
		u.recordState(result, nil)
		return result, nil
	}

	err = u.fetchAndApply(ctx, result)
	u.recordState(result, err)
	return result, err
}

func (u *Updater) fetchAndApply(ctx context.Context, result *Result) error {
	result.Phase = PhaseFetching
	u.opts.Logf("Fetching %s@%s (%s)", u.opts.Remote.Repo, u.opts.Remote.Ref, shortRev(result.RemoteVersion))

	workDir, err := os.MkdirTemp(filepath.Dir(u.opts.LiveDir), workDirPrefix)
	if err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}
	cleanWork := true
	defer func() {
		if cleanWork {
			os.RemoveAll(workDir)
		}
	}()

	archivePath := filepath.Join(workDir, "archive.zip")
	if err := u.opts.Remote.DownloadArchive(ctx, archivePath); err != nil {
		result.Phase = PhaseFailed
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}

	stagedRoot, err := ExtractArchive(archivePath, filepath.Join(workDir, "staged"))
	if err != nil {
		result.Phase = PhaseFailed
		return fmt.Errorf("%w: %v", ErrFetch, err)
	}

	result.Phase = PhaseVerifying
	if err := VerifyStaged(stagedRoot, u.opts.RequiredEntries); err != nil {
		result.Phase = PhaseFailed
		return err
	}
	result.Phase = PhaseStaged

	// The file list must come from the staged tree before the swap
	// renames its entries away.
	files, err := listFiles(stagedRoot)
	if err != nil {
		result.Phase = PhaseFailed
		return fmt.Errorf("%w: %v", ErrApply, err)
	}

	result.Phase = PhaseApplying
	backupPath, err := u.apply(workDir, stagedRoot, result)
	if err != nil {
		// apply sets the terminal phase itself (Failed or RolledBack).
		// Keep the work directory on a failed rollback so nothing that
		// might still be needed for manual recovery is destroyed.
		if result.Phase == PhaseFailed {
			cleanWork = false
		}
		return err
	}
	manifest := &InstallationManifest{
		Version:    result.RemoteVersion,
		Files:      files,
		BackupPath: backupPath,
		UpdatedAt:  u.now().UTC(),
	}
	if err := manifest.Save(u.opts.ManifestPath); err != nil {
		result.Phase = PhaseFailed
		return err
	}

	result.Phase = PhaseApplied
	result.BackupPath = backupPath
	u.opts.Logf("Updated to %s (backup at %s)", shortRev(result.RemoteVersion), backupPath)
	return nil
}

// apply backs up the live tree, then swaps staged top-level entries
// into place with renames. Preserved entries are skipped on both sides.
// On a swap error every completed rename is undone from the old/ dir.
func (u *Updater) apply(workDir, stagedRoot string, result *Result) (string, error) {
	preserved := preservedSet(u.opts.PreservedEntries)

	backupPath := filepath.Join(u.opts.BackupsDir, u.now().Format("20060102-150405"))
	if err := copyTree(u.opts.LiveDir, backupPath, preserved); err != nil {
		result.Phase = PhaseFailed
		return "", fmt.Errorf("%w: backup: %v", ErrApply, err)
	}
	result.BackupPath = backupPath

	oldDir := filepath.Join(workDir, "old")
	if err := os.MkdirAll(oldDir, 0755); err != nil {
		result.Phase = PhaseFailed
		return "", fmt.Errorf("%w: %v", ErrApply, err)
	}

	entries, err := os.ReadDir(stagedRoot)
	if err != nil {
		result.Phase = PhaseFailed
		return "", fmt.Errorf("%w: %v", ErrApply, err)
	}

	var swapped []string
	for _, entry := range entries {
		name := entry.Name()
		if preserved[name] {
			continue
		}

		livePath := filepath.Join(u.opts.LiveDir, name)
		if _, statErr := os.Lstat(livePath); statErr == nil {
			if err := os.Rename(livePath, filepath.Join(oldDir, name)); err != nil {
				return backupPath, u.rollbackSwap(oldDir, swapped, result,
					fmt.Errorf("%w: displacing %s: %v", ErrApply, name, err))
			}
		}
		if err := os.Rename(filepath.Join(stagedRoot, name), livePath); err != nil {
			return backupPath, u.rollbackSwap(oldDir, swapped, result,
				fmt.Errorf("%w: placing %s: %v", ErrApply, name, err))
		}
		swapped = append(swapped, name)
	}

	return backupPath, nil
}

// rollbackSwap undoes a partial swap: placed entries are removed and
// displaced ones restored from old/. The live tree is back to its
// pre-apply state on success.
func (u *Updater) rollbackSwap(oldDir string, swapped []string, result *Result, cause error) error {
	u.opts.Logf("Apply failed, rolling back: %v", cause)

	for i := len(swapped) - 1; i >= 0; i-- {
		name := swapped[i]
		livePath := filepath.Join(u.opts.LiveDir, name)

		if err := os.RemoveAll(livePath); err != nil {
			result.Phase = PhaseFailed
			return fmt.Errorf("%w: removing %s: %v (after %v)", ErrRollback, name, err, cause)
		}
		oldPath := filepath.Join(oldDir, name)
		if _, statErr := os.Lstat(oldPath); statErr == nil {
			if err := os.Rename(oldPath, livePath); err != nil {
				result.Phase = PhaseFailed
				return fmt.Errorf("%w: restoring %s: %v (after %v)", ErrRollback, name, err, cause)
			}
		}
	}

	result.Phase = PhaseRolledBack
	u.opts.Logf("Rolled back to previous installation")
	return cause
}

// recoverInterrupted rolls back leftovers of an apply that died between
// swap and manifest write. Entries parked in a work directory's old/
// are moved back over whatever the dead run placed.
func (u *Updater) recoverInterrupted() error {
	parent := filepath.Dir(u.opts.LiveDir)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return fmt.Errorf("failed to scan for interrupted updates: %w", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), workDirPrefix) {
			continue
		}
		workDir := filepath.Join(parent, entry.Name())
		u.opts.Logf("Found interrupted update at %s, rolling back", workDir)

		oldDir := filepath.Join(workDir, "old")
		oldEntries, err := os.ReadDir(oldDir)
		if err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("%w: reading %s: %v", ErrRollback, oldDir, err)
		}
		for _, old := range oldEntries {
			livePath := filepath.Join(u.opts.LiveDir, old.Name())
			if err := os.RemoveAll(livePath); err != nil {
				return fmt.Errorf("%w: removing %s: %v", ErrRollback, livePath, err)
			}
			if err := os.Rename(filepath.Join(oldDir, old.Name()), livePath); err != nil {
				return fmt.Errorf("%w: restoring %s: %v", ErrRollback, old.Name(), err)
			}
		}

		if err := os.RemoveAll(workDir); err != nil {
			return fmt.Errorf("failed to remove interrupted work directory %s: %w", workDir, err)
		}
	}
	return nil
}

// RestoreBackup copies a previous backup over the live installation,
// skipping preserved entries. Used for explicit operator-driven
// rollback to a known-good tree.
func (u *Updater) RestoreBackup(backupPath string) error {
	if _, err := os.Stat(backupPath); err != nil {
		return fmt.Errorf("backup %s not found: %w", backupPath, err)
	}
	if err := copyTree(backupPath, u.opts.LiveDir, preservedSet(u.opts.PreservedEntries)); err != nil {
		return fmt.Errorf("%w: %v", ErrRollback, err)
	}
	return nil
}

func (u *Updater) recordState(result *Result, runErr error) {
	if u.opts.StatePath == "" {
		return
	}
	state := LoadState(u.opts.StatePath)
	state.LastCheck = u.now().UTC()
	state.LastPhase = result.Phase
	state.LastError = ""
	if runErr != nil {
		state.LastError = runErr.Error()
	}
	if result.RemoteVersion != "" {
		state.LastRevision = result.RemoteVersion
	}
	if result.Phase == PhaseApplied {
		state.UpdateCount++
	}
	if err := state.Save(u.opts.StatePath); err != nil {
		u.opts.Logf("WARNING: failed to save update state: %v", err)
	}
}

func preservedSet(names []string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, name := range names {
		set[name] = true
	}
	return set
}

func shortRev(rev string) string {
	if len(rev) > 12 {
		return rev[:12]
	}
	if rev == "" {
		return "unknown"
	}
	return rev
}
