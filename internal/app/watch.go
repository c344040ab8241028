package app

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

var (
	watchDebounce time.Duration

	watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-sync the database whenever a Brewfile changes",
		Long: `Watch the project's Brewfiles for changes and run a sync after each
edit. Events are debounced so editors that write multiple times per
save trigger a single sync.

Runs in the foreground; stop with Ctrl+C.`,
		Example: `  # Watch with the default debounce
  brewfile-analyzer watch

  # Debounce bursts of writes for two seconds
  brewfile-analyzer watch --debounce 2s`,
		RunE: runWatch,
	}
)

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", 500*time.Millisecond, "delay after the last write before syncing")
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.HasBrewfiles() {
		return fmt.Errorf("no Brewfiles found under %s", cfg.Root)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directories, not the files: editors replace files on
	// save and a watch on the old inode goes quiet.
	watched := map[string]bool{}
	brewfilePaths := map[string]bool{}
	for _, path := range cfg.Brewfiles {
		brewfilePaths[path] = true
		dir := filepath.Dir(path)
		if watched[dir] {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		watched[dir] = true
	}
	infof("Watching %d Brewfile(s) under %s", len(brewfilePaths), cfg.Root)

	// Initial sync so the database reflects the current files.
	if err := runSync(cmd, nil); err != nil {
		warnf("Initial sync failed: %v", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	// A nil timer channel blocks until the first event arms it.
	var timer *time.Timer
	var timerCh <-chan time.Time

	for {
		select {
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !brewfilePaths[event.Name] {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.NewTimer(watchDebounce)
			timerCh = timer.C

		case <-timerCh:
			timerCh = nil
			infof("Brewfile changed, syncing")
			if err := runSync(cmd, nil); err != nil {
				warnf("Sync failed: %v", err)
			}

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			warnf("Watcher error: %v", err)

		case sig := <-sigCh:
			infof("Received %s, stopping watch", sig)
			return nil
		}
	}
}
