package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// InstallationManifest records what version is live, which files the
// updater manages, and where the previous version's backup lives. It is
// written only after a swap completes, so a crash between swap and
// manifest write is detectable on the next run (staged leftovers plus
// an unchanged manifest).
type InstallationManifest struct {
	Version    string    `json:"version"`
	Files      []string  `json:"files"`
	BackupPath string    `json:"backup_path,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// LoadManifest reads the manifest at path. A missing file yields an
// empty manifest (fresh installation, version unknown), not an error.
func LoadManifest(path string) (*InstallationManifest, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &InstallationManifest{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read installation manifest: %w", err)
	}

	var m InstallationManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse installation manifest %s: %w", path, err)
	}
	return &m, nil
}

// Save atomically replaces the manifest at path (write to a temp file
// in the same directory, then rename).
func (m *InstallationManifest) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create manifest directory: %w", err)
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal installation manifest: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".manifest-*")
	if err != nil {
		return fmt.Errorf("failed to create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp manifest: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace installation manifest: %w", err)
	}
	return nil
}
