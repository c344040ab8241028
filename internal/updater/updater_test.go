package updater

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/lock"
)

// newFakeRemote serves a GitHub-shaped API: a commits endpoint that
// resolves main to sha, and an archive endpoint with the given tree
// under a single analyzer-main/ root.
func newFakeRemote(t *testing.T, sha string, tree map[string]string) *Remote {
	t.Helper()

	var archive bytes.Buffer
	zw := zip.NewWriter(&archive)
	for name, content := range tree {
		f, err := zw.Create("analyzer-main/" + name)
		if err != nil {
			t.Fatalf("failed to build fake archive: %v", err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("failed to build fake archive: %v", err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to build fake archive: %v", err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/repos/owner/analyzer/commits/main", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"sha": sha})
	})
	mux.HandleFunc("/owner/analyzer/archive/main.zip", func(w http.ResponseWriter, r *http.Request) {
		w.Write(archive.Bytes())
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &Remote{
		Repo:           "owner/analyzer",
		Ref:            "main",
		APIBaseURL:     server.URL,
		ArchiveBaseURL: server.URL,
		Client:         server.Client(),
	}
}

func newTestUpdater(t *testing.T, remote *Remote) (*Updater, string) {
	t.Helper()

	live := filepath.Join(t.TempDir(), "app")
	if err := os.MkdirAll(filepath.Join(live, "data"), 0755); err != nil {
		t.Fatalf("failed to create live dir: %v", err)
	}

	u := New(Options{
		LiveDir:         live,
		ManifestPath:    filepath.Join(live, "data", "install-manifest.json"),
		LockPath:        filepath.Join(live, ".update.lock"),
		StatePath:       filepath.Join(live, ".update_state.json"),
		BackupsDir:      filepath.Join(live, "backups", "self_update"),
		Remote:          remote,
		RequiredEntries: []string{"README.md", "cmd"},
		PreservedEntries: []string{
			"data", "backups", ".update.lock", ".update_state.json",
		},
	})
	return u, live
}

func seedLive(t *testing.T, live string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(live, name)
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatalf("failed to seed %s: %v", name, err)
		}
	}
}

func readLive(t *testing.T, live, name string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(live, name))
	if err != nil {
		t.Fatalf("failed to read %s: %v", name, err)
	}
	return string(data)
}

func TestRun_AppliesUpdate(t *testing.T) {
	remote := newFakeRemote(t, "abc123def456", map[string]string{
		"README.md":   "new readme",
		"cmd/main.go": "package main",
	})
	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{
		"README.md":     "old readme",
		"legacy.txt":    "still here",
		"data/tools.db": "database",
	})

	result, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Phase != PhaseApplied {
		t.Fatalf("phase = %s, want applied", result.Phase)
	}

	if got := readLive(t, live, "README.md"); got != "new readme" {
		t.Errorf("README.md = %q, want updated content", got)
	}
	if got := readLive(t, live, filepath.Join("cmd", "main.go")); got != "package main" {
		t.Errorf("cmd/main.go = %q", got)
	}

	// Preserved and unmanaged entries survive.
	if got := readLive(t, live, filepath.Join("data", "tools.db")); got != "database" {
		t.Errorf("data/tools.db = %q, preserved path was touched", got)
	}
	if got := readLive(t, live, "legacy.txt"); got != "still here" {
		t.Errorf("legacy.txt = %q, unmanaged entry was touched", got)
	}

	// The backup holds the pre-update tree, without preserved paths.
	if result.BackupPath == "" {
		t.Fatal("result carries no backup path")
	}
	data, err := os.ReadFile(filepath.Join(result.BackupPath, "README.md"))
	if err != nil || string(data) != "old readme" {
		t.Errorf("backup README.md = %q, %v", data, err)
	}
	if _, err := os.Stat(filepath.Join(result.BackupPath, "data")); !os.IsNotExist(err) {
		t.Error("backup should not include preserved data/")
	}

	manifest, err := LoadManifest(filepath.Join(live, "data", "install-manifest.json"))
	if err != nil {
		t.Fatalf("LoadManifest() failed: %v", err)
	}
	if manifest.Version != "abc123def456" {
		t.Errorf("manifest version = %q", manifest.Version)
	}
	if manifest.BackupPath != result.BackupPath {
		t.Errorf("manifest backup path = %q, want %q", manifest.BackupPath, result.BackupPath)
	}
	wantFiles := []string{"README.md", "cmd/main.go"}
	if len(manifest.Files) != len(wantFiles) {
		t.Fatalf("manifest files = %v, want %v", manifest.Files, wantFiles)
	}
	for i, f := range wantFiles {
		if manifest.Files[i] != f {
			t.Errorf("manifest files[%d] = %q, want %q", i, manifest.Files[i], f)
		}
	}

	// Lock released, state recorded.
	if _, err := os.Stat(filepath.Join(live, ".update.lock")); !os.IsNotExist(err) {
		t.Error("lock should be released after a successful run")
	}
	state := LoadState(filepath.Join(live, ".update_state.json"))
	if state.LastPhase != PhaseApplied || state.UpdateCount != 1 {
		t.Errorf("state = %+v, want applied with count 1", state)
	}
}

func TestRun_UpToDate(t *testing.T) {
	remote := newFakeRemote(t, "samesha", map[string]string{"README.md": "x", "cmd/m.go": "y"})
	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{"README.md": "current"})

	manifest := &InstallationManifest{Version: "samesha", UpdatedAt: time.Now()}
	if err := manifest.Save(filepath.Join(live, "data", "install-manifest.json")); err != nil {
		t.Fatalf("failed to seed manifest: %v", err)
	}

	result, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Phase != PhaseUpToDate {
		t.Errorf("phase = %s, want up-to-date", result.Phase)
	}
	if got := readLive(t, live, "README.md"); got != "current" {
		t.Errorf("README.md = %q, up-to-date run must not touch the tree", got)
	}
}

func TestRun_VerificationFailureLeavesLiveUntouched(t *testing.T) {
	// The staged tree lacks the required cmd entry.
	remote := newFakeRemote(t, "badsha", map[string]string{"README.md": "incomplete"})
	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{"README.md": "current"})

	result, err := u.Run(context.Background())
	if !errors.Is(err, ErrVerification) {
		t.Fatalf("Run() error = %v, want ErrVerification", err)
	}
	if result.Phase != PhaseFailed {
		t.Errorf("phase = %s, want failed", result.Phase)
	}
	if got := readLive(t, live, "README.md"); got != "current" {
		t.Errorf("README.md = %q, failed verification must not modify the live tree", got)
	}
	if _, err := os.Stat(filepath.Join(live, ".update.lock")); !os.IsNotExist(err) {
		t.Error("lock should be released after a failed run")
	}
}

func TestRun_FetchFailure(t *testing.T) {
	remote := newFakeRemote(t, "sha", map[string]string{"README.md": "x", "cmd/m.go": "y"})
	remote.ArchiveBaseURL = remote.ArchiveBaseURL + "/missing"

	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{"README.md": "current"})

	result, err := u.Run(context.Background())
	if !errors.Is(err, ErrFetch) {
		t.Fatalf("Run() error = %v, want ErrFetch", err)
	}
	if result.Phase != PhaseFailed {
		t.Errorf("phase = %s, want failed", result.Phase)
	}
	if got := readLive(t, live, "README.md"); got != "current" {
		t.Errorf("README.md = %q, failed fetch must not modify the live tree", got)
	}
}

func TestRun_SkippedWhenLockBusy(t *testing.T) {
	remote := newFakeRemote(t, "sha", map[string]string{"README.md": "x", "cmd/m.go": "y"})
	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{"README.md": "current"})

	handle, err := lock.Acquire(filepath.Join(live, ".update.lock"), "sync")
	if err != nil {
		t.Fatalf("failed to take lock: %v", err)
	}
	defer handle.Release()

	result, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() with busy lock should not error, got: %v", err)
	}
	if result.Phase != PhaseSkipped {
		t.Errorf("phase = %s, want skipped", result.Phase)
	}
	if got := readLive(t, live, "README.md"); got != "current" {
		t.Errorf("README.md = %q, skipped run must not modify the live tree", got)
	}
}

func TestRun_RecoversInterruptedApply(t *testing.T) {
	remote := newFakeRemote(t, "samesha", map[string]string{"README.md": "x", "cmd/m.go": "y"})
	u, live := newTestUpdater(t, remote)

	// A previous run died mid-swap: the live tree holds half-applied
	// content, the displaced original sits in the work directory, and
	// the manifest still names the old version.
	seedLive(t, live, map[string]string{"README.md": "half-applied"})
	manifest := &InstallationManifest{Version: "samesha"}
	if err := manifest.Save(filepath.Join(live, "data", "install-manifest.json")); err != nil {
		t.Fatalf("failed to seed manifest: %v", err)
	}
	oldDir := filepath.Join(filepath.Dir(live), workDirPrefix+"crashed", "old")
	if err := os.MkdirAll(oldDir, 0755); err != nil {
		t.Fatalf("failed to fabricate work dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(oldDir, "README.md"), []byte("original"), 0644); err != nil {
		t.Fatalf("failed to fabricate displaced entry: %v", err)
	}

	result, err := u.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() failed: %v", err)
	}
	if result.Phase != PhaseUpToDate {
		t.Errorf("phase = %s, want up-to-date after recovery", result.Phase)
	}
	if got := readLive(t, live, "README.md"); got != "original" {
		t.Errorf("README.md = %q, recovery should restore the displaced original", got)
	}
	if _, err := os.Stat(filepath.Join(filepath.Dir(live), workDirPrefix+"crashed")); !os.IsNotExist(err) {
		t.Error("work directory should be removed after recovery")
	}
}

func TestRollbackSwap_RestoresDisplacedEntries(t *testing.T) {
	remote := newFakeRemote(t, "sha", nil)
	u, live := newTestUpdater(t, remote)

	oldDir := filepath.Join(t.TempDir(), "old")
	if err := os.MkdirAll(oldDir, 0755); err != nil {
		t.Fatalf("failed to create old dir: %v", err)
	}
	// a.txt was swapped (original displaced), b.txt was newly placed
	// with no prior version.
	seedLive(t, live, map[string]string{"a.txt": "new-a", "b.txt": "new-b"})
	if err := os.WriteFile(filepath.Join(oldDir, "a.txt"), []byte("orig-a"), 0644); err != nil {
		t.Fatalf("failed to seed old dir: %v", err)
	}

	cause := fmt.Errorf("%w: simulated", ErrApply)
	result := &Result{}
	err := u.rollbackSwap(oldDir, []string{"a.txt", "b.txt"}, result, cause)
	if !errors.Is(err, ErrApply) {
		t.Fatalf("rollbackSwap() error = %v, want the apply cause", err)
	}
	if result.Phase != PhaseRolledBack {
		t.Errorf("phase = %s, want rolled-back", result.Phase)
	}

	if got := readLive(t, live, "a.txt"); got != "orig-a" {
		t.Errorf("a.txt = %q, want displaced original restored", got)
	}
	if _, err := os.Stat(filepath.Join(live, "b.txt")); !os.IsNotExist(err) {
		t.Error("b.txt had no prior version and should be removed")
	}
}

func TestRestoreBackup(t *testing.T) {
	remote := newFakeRemote(t, "sha", nil)
	u, live := newTestUpdater(t, remote)
	seedLive(t, live, map[string]string{
		"README.md":     "broken",
		"data/tools.db": "database",
	})

	backup := filepath.Join(t.TempDir(), "backup")
	if err := os.MkdirAll(backup, 0755); err != nil {
		t.Fatalf("failed to create backup: %v", err)
	}
	if err := os.WriteFile(filepath.Join(backup, "README.md"), []byte("known good"), 0644); err != nil {
		t.Fatalf("failed to seed backup: %v", err)
	}

	if err := u.RestoreBackup(backup); err != nil {
		t.Fatalf("RestoreBackup() failed: %v", err)
	}
	if got := readLive(t, live, "README.md"); got != "known good" {
		t.Errorf("README.md = %q, want backup content", got)
	}
	if got := readLive(t, live, filepath.Join("data", "tools.db")); got != "database" {
		t.Errorf("data/tools.db = %q, preserved path was touched", got)
	}

	if err := u.RestoreBackup(filepath.Join(backup, "nope")); err == nil {
		t.Error("RestoreBackup() should fail for a missing backup")
	}
}

func TestCheck_FreshInstallation(t *testing.T) {
	remote := newFakeRemote(t, "firstsha", nil)
	u, _ := newTestUpdater(t, remote)

	result, err := u.Check(context.Background())
	if err != nil {
		t.Fatalf("Check() failed: %v", err)
	}
	if result.Phase != PhaseUpdateAvailable {
		t.Errorf("phase = %s, want update-available with no manifest", result.Phase)
	}
	if result.InstalledVersion != "" || result.RemoteVersion != "firstsha" {
		t.Errorf("versions = %q/%q", result.InstalledVersion, result.RemoteVersion)
	}
}

func TestState_CheckDue(t *testing.T) {
	now := time.Now()
	s := &State{}
	if !s.CheckDue(6*time.Hour, now) {
		t.Error("zero state should be due")
	}
	s.LastCheck = now.Add(-time.Hour)
	if s.CheckDue(6*time.Hour, now) {
		t.Error("recent check should not be due")
	}
	s.LastCheck = now.Add(-7 * time.Hour)
	if !s.CheckDue(6*time.Hour, now) {
		t.Error("old check should be due")
	}
}

func TestFirstRunMarker(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".first_run")

	marker, err := LoadFirstRun(path)
	if err != nil || marker != nil {
		t.Fatalf("LoadFirstRun() on missing file = %+v, %v", marker, err)
	}

	if err := RecordFirstRun(path, true); err != nil {
		t.Fatalf("RecordFirstRun() failed: %v", err)
	}
	marker, err = LoadFirstRun(path)
	if err != nil {
		t.Fatalf("LoadFirstRun() failed: %v", err)
	}
	if marker == nil || !marker.Enabled {
		t.Errorf("marker = %+v, want enabled", marker)
	}
}

func TestPromptFirstRun(t *testing.T) {
	cases := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"yes\n", true},
		{"Y\n", true},
		{"n\n", false},
		{"\n", false},
		{"", false},
	}
	for _, tc := range cases {
		var out bytes.Buffer
		got, err := PromptFirstRun(strings.NewReader(tc.input), &out, "owner/analyzer")
		if err != nil {
			t.Fatalf("PromptFirstRun(%q) failed: %v", tc.input, err)
		}
		if got != tc.want {
			t.Errorf("PromptFirstRun(%q) = %v, want %v", tc.input, got, tc.want)
		}
		if !strings.Contains(out.String(), "owner/analyzer") {
			t.Errorf("prompt should name the repo, got %q", out.String())
		}
	}
}
