package updater

import (
	"archive/zip"
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := zw.Create(name)
		if err != nil {
			t.Fatalf("failed to add %s to zip: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("failed to write %s: %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("failed to close zip: %v", err)
	}

	path := filepath.Join(dir, "archive.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		t.Fatalf("failed to write zip file: %v", err)
	}
	return path
}

func TestExtractArchive(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		"analyzer-main/README.md":   "readme",
		"analyzer-main/cmd/main.go": "package main",
	})

	root, err := ExtractArchive(zipPath, filepath.Join(dir, "staged"))
	if err != nil {
		t.Fatalf("ExtractArchive() failed: %v", err)
	}

	if filepath.Base(root) != "analyzer-main" {
		t.Errorf("staged root = %q, want analyzer-main", root)
	}
	data, err := os.ReadFile(filepath.Join(root, "cmd", "main.go"))
	if err != nil || string(data) != "package main" {
		t.Errorf("extracted cmd/main.go = %q, %v", data, err)
	}
}

func TestExtractArchive_RejectsEscapingEntry(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		"../outside.txt": "nope",
	})

	if _, err := ExtractArchive(zipPath, filepath.Join(dir, "staged")); err == nil {
		t.Error("ExtractArchive() should reject entries escaping the extraction root")
	}
}

func TestExtractArchive_RejectsMultipleRoots(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		"one/a.txt": "a",
		"two/b.txt": "b",
	})

	if _, err := ExtractArchive(zipPath, filepath.Join(dir, "staged")); err == nil {
		t.Error("ExtractArchive() should reject archives without a single top-level directory")
	}
}

func TestVerifyStaged(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "README.md"), []byte("x"), 0644); err != nil {
		t.Fatalf("failed to seed staged tree: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(dir, "cmd"), 0755); err != nil {
		t.Fatalf("failed to seed staged tree: %v", err)
	}

	if err := VerifyStaged(dir, []string{"README.md", "cmd"}); err != nil {
		t.Errorf("VerifyStaged() failed on complete tree: %v", err)
	}

	err := VerifyStaged(dir, []string{"README.md", "internal"})
	if !errors.Is(err, ErrVerification) {
		t.Errorf("VerifyStaged() error = %v, want ErrVerification", err)
	}
}

func TestCopyTree_SkipsPreserved(t *testing.T) {
	src := t.TempDir()
	dst := filepath.Join(t.TempDir(), "copy")

	if err := os.WriteFile(filepath.Join(src, "keep.txt"), []byte("keep"), 0644); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(src, "data"), 0755); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(src, "data", "tools.db"), []byte("db"), 0644); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	if err := copyTree(src, dst, map[string]bool{"data": true}); err != nil {
		t.Fatalf("copyTree() failed: %v", err)
	}

	if _, err := os.Stat(filepath.Join(dst, "keep.txt")); err != nil {
		t.Errorf("keep.txt should be copied: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dst, "data")); !os.IsNotExist(err) {
		t.Error("preserved data/ should not be copied")
	}
}
