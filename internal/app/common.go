package app

import (
	"fmt"
	"os"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/config"
	"github.com/nwhistler/brewfile-analyzer/internal/enrich"
	"github.com/nwhistler/brewfile-analyzer/internal/store"
	"github.com/nwhistler/brewfile-analyzer/internal/updater"
)

// version is stamped at build time via -ldflags.
var version = "dev"

// logf writes a timestamped line to stderr, keeping stdout clean for
// tables and JSON.
func logf(level, format string, args ...any) {
	ts := time.Now().Format("2006-01-02 15:04:05")
	fmt.Fprintf(os.Stderr, "[%s] %s: %s\n", ts, level, fmt.Sprintf(format, args...))
}

func infof(format string, args ...any) {
	logf("INFO", format, args...)
}

func warnf(format string, args ...any) {
	logf("WARNING", format, args...)
}

// loadConfig resolves the project configuration from the --root flag
// and environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(rootDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	return cfg, nil
}

// openStore opens the migrated tool database for cfg.
func openStore(cfg *config.Config) (*store.Store, error) {
	if err := cfg.EnsureDataDir(); err != nil {
		return nil, err
	}
	db, err := store.Open(cfg.DBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// buildEnricher picks the description provider from settings. The
// Ollama provider falls back to static text when the local model is
// unreachable or returns nothing usable.
func buildEnricher(cfg *config.Config) enrich.Enricher {
	switch cfg.Settings.Enrich.Provider {
	case "none":
		return enrich.Noop{}
	case "ollama":
		ollama := enrich.NewOllama(cfg.Settings.Enrich.OllamaURL, cfg.Settings.Enrich.OllamaModel)
		return enrich.Chain{ollama, enrich.Static{}}
	default:
		return enrich.Static{}
	}
}

// newUpdater builds the self-updater for cfg, with optional repo/ref
// overrides from command flags.
func newUpdater(cfg *config.Config, repo, ref string) *updater.Updater {
	if repo == "" {
		repo = cfg.Settings.Update.Repo
	}
	if ref == "" {
		ref = cfg.Settings.Update.Ref
	}

	return updater.New(updater.Options{
		LiveDir:         cfg.AppDir,
		ManifestPath:    cfg.ManifestPath(),
		LockPath:        cfg.LockPath(),
		StatePath:       cfg.StatePath(),
		BackupsDir:      cfg.BackupsDir(),
		Remote:          updater.NewRemote(repo, ref),
		RequiredEntries: []string{"go.mod", "cmd", "internal"},
		PreservedEntries: []string{
			"data",
			"backups",
			config.SettingsFileName,
			".brewfile_update.lock",
			".brewfile_update_state.json",
			".first_run_prompted",
		},
		Logf: infof,
	})
}
