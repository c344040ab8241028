package updater

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// State is the scheduled-update bookkeeping file. It throttles remote
// checks to the configured interval and keeps a short trail of what the
// last run did, which the status command surfaces.
type State struct {
	LastCheck    time.Time `json:"last_check"`
	LastRevision string    `json:"last_revision,omitempty"`
	LastPhase    Phase     `json:"last_phase,omitempty"`
	LastError    string    `json:"last_error,omitempty"`
	UpdateCount  int       `json:"update_count"`
}

// LoadState reads the state file. A missing or unreadable file yields a
// zero state; stale bookkeeping must never block an update run.
func LoadState(path string) *State {
	var s State
	data, err := os.ReadFile(path)
	if err != nil {
		return &s
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return &State{}
	}
	return &s
}

// Save atomically replaces the state file at path.
func (s *State) Save(path string) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal update state: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".state-*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to replace update state file: %w", err)
	}
	return nil
}

// CheckDue reports whether enough time has passed since the last remote
// check for a scheduled run to proceed.
func (s *State) CheckDue(interval time.Duration, now time.Time) bool {
	if s.LastCheck.IsZero() {
		return true
	}
	return now.Sub(s.LastCheck) >= interval
}
