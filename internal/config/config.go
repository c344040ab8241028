// Package config locates the Brewfile project root, the installed app
// directory, and the state files shared by the sync and update paths.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

// SettingsFileName is the optional per-installation settings file,
// looked up in the app directory.
const SettingsFileName = "brewfile-analyzer.yaml"

// Settings are the tunables a user may override via the YAML file.
type Settings struct {
	Update struct {
		Repo          string `yaml:"repo"`
		Ref           string `yaml:"ref"`
		IntervalHours int    `yaml:"interval_hours"`
	} `yaml:"update"`
	Enrich struct {
		Provider    string `yaml:"provider"` // "static" (default), "ollama", "none"
		OllamaURL   string `yaml:"ollama_url"`
		OllamaModel string `yaml:"ollama_model"`
	} `yaml:"enrich"`
	Serve struct {
		Addr string `yaml:"addr"`
	} `yaml:"serve"`
}

// Config resolves every path the tool touches. Root is where the
// Brewfiles live; AppDir is the live installation the self-updater
// manages. They coincide for a checkout but differ for a deployed copy
// reading Brewfiles from the user's dotfiles.
type Config struct {
	Root      string
	AppDir    string
	Brewfiles map[brewfile.RecordType]string
	Settings  Settings
}

// Load builds a Config. Precedence for the project root: explicit
// argument, BREWFILE_PROJECT_ROOT, current directory. The app dir
// defaults to the project root and can be moved with BREWFILE_APP_ROOT.
func Load(customRoot string) (*Config, error) {
	root := customRoot
	if root == "" {
		root = os.Getenv("BREWFILE_PROJECT_ROOT")
	}
	if root == "" {
		cwd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to determine working directory: %w", err)
		}
		root = cwd
	}

	root, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve root %s: %w", root, err)
	}

	appDir := os.Getenv("BREWFILE_APP_ROOT")
	if appDir == "" {
		appDir = root
	}

	cfg := &Config{
		Root:      root,
		AppDir:    appDir,
		Brewfiles: DetectBrewfiles(root),
	}
	cfg.Settings = defaultSettings()

	if err := cfg.loadSettingsFile(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// DetectBrewfiles finds the Brewfiles under root. Split files
// (Brewfile.Brew, Brewfile.Cask, ...) are preferred; a single Brewfile
// is mapped to every type and filtered by the parser's patterns.
// Lowercase variants of either layout are accepted.
func DetectBrewfiles(root string) map[brewfile.RecordType]string {
	files := map[brewfile.RecordType]string{}

	suffixes := map[brewfile.RecordType][]string{
		brewfile.TypeBrew: {"Brewfile.Brew", "brewfile.brew"},
		brewfile.TypeCask: {"Brewfile.Cask", "brewfile.cask"},
		brewfile.TypeMas:  {"Brewfile.Mas", "brewfile.mas"},
		brewfile.TypeTap:  {"Brewfile.Tap", "brewfile.tap"},
	}

	foundSplit := false
	for rt, names := range suffixes {
		for _, name := range names {
			path := filepath.Join(root, name)
			if _, err := os.Stat(path); err == nil {
				files[rt] = path
				foundSplit = true
				break
			}
		}
	}
	if foundSplit {
		return files
	}

	for _, name := range []string{"Brewfile", "brewfile"} {
		path := filepath.Join(root, name)
		if _, err := os.Stat(path); err == nil {
			for _, rt := range brewfile.AllTypes() {
				files[rt] = path
			}
			return files
		}
	}

	return files
}

// HasBrewfiles reports whether any Brewfile was detected.
func (c *Config) HasBrewfiles() bool {
	return len(c.Brewfiles) > 0
}

// DataDir holds the database and installation manifest. It is a
// preserved path: self-updates never overwrite it.
func (c *Config) DataDir() string {
	return filepath.Join(c.AppDir, "data")
}

// DBPath is the SQLite database location.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir(), "tools.db")
}

// ManifestPath is the installation manifest the self-updater maintains.
func (c *Config) ManifestPath() string {
	return filepath.Join(c.DataDir(), "install-manifest.json")
}

// LockPath is the host-local update lock marker.
func (c *Config) LockPath() string {
	return filepath.Join(c.AppDir, ".brewfile_update.lock")
}

// StatePath records sync bookkeeping (last run, input hashes).
func (c *Config) StatePath() string {
	return filepath.Join(c.AppDir, ".brewfile_update_state.json")
}

// FirstRunPath is the one-time marker recording that the user was
// prompted (or opted out) before scheduled updates were enabled.
func (c *Config) FirstRunPath() string {
	return filepath.Join(c.AppDir, ".first_run_prompted")
}

// BackupsDir holds pre-update copies of the installation.
func (c *Config) BackupsDir() string {
	return filepath.Join(c.AppDir, "backups", "self_update")
}

// DocsDir is the static web UI directory served by the API server.
func (c *Config) DocsDir() string {
	return filepath.Join(c.AppDir, "docs")
}

// EnsureDataDir creates the data directory if missing.
func (c *Config) EnsureDataDir() error {
	if err := os.MkdirAll(c.DataDir(), 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

func defaultSettings() Settings {
	var s Settings
	s.Update.Repo = "nwhistler/brewfile-analyzer"
	s.Update.Ref = "main"
	s.Update.IntervalHours = 6
	s.Enrich.Provider = "static"
	s.Serve.Addr = "127.0.0.1:5050"
	return s
}

func (c *Config) loadSettingsFile() error {
	path := filepath.Join(c.AppDir, SettingsFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read settings file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &c.Settings); err != nil {
		return fmt.Errorf("failed to parse settings file %s: %w", path, err)
	}

	// Re-fill anything the file left empty.
	defaults := defaultSettings()
	if c.Settings.Update.Repo == "" {
		c.Settings.Update.Repo = defaults.Update.Repo
	}
	if c.Settings.Update.Ref == "" {
		c.Settings.Update.Ref = defaults.Update.Ref
	}
	if c.Settings.Update.IntervalHours <= 0 {
		c.Settings.Update.IntervalHours = defaults.Update.IntervalHours
	}
	if c.Settings.Enrich.Provider == "" {
		c.Settings.Enrich.Provider = defaults.Enrich.Provider
	}
	if c.Settings.Serve.Addr == "" {
		c.Settings.Serve.Addr = defaults.Serve.Addr
	}

	return nil
}
