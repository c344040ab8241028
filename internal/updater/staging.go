package updater

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// ExtractArchive unpacks the downloaded zip into destDir and returns
// the path of the single top-level directory GitHub archives contain
// ("name-ref/"). Entries that would escape destDir are rejected.
func ExtractArchive(zipPath, destDir string) (string, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return "", fmt.Errorf("failed to open archive %s: %w", zipPath, err)
	}
	defer reader.Close()

	topLevel := map[string]bool{}

	for _, file := range reader.File {
		name := filepath.Clean(file.Name)
		if name == "." || strings.HasPrefix(name, "..") {
			return "", fmt.Errorf("archive entry %q escapes extraction root", file.Name)
		}

		topLevel[strings.SplitN(name, string(os.PathSeparator), 2)[0]] = true

		target := filepath.Join(destDir, name)
		if file.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0755); err != nil {
				return "", fmt.Errorf("failed to create %s: %w", target, err)
			}
			continue
		}

		if err := extractFile(file, target); err != nil {
			return "", err
		}
	}

	if len(topLevel) != 1 {
		return "", fmt.Errorf("archive has %d top-level entries, want exactly 1", len(topLevel))
	}
	for name := range topLevel {
		return filepath.Join(destDir, name), nil
	}
	return "", fmt.Errorf("archive %s is empty", zipPath)
}

func extractFile(file *zip.File, target string) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", target, err)
	}

	src, err := file.Open()
	if err != nil {
		return fmt.Errorf("failed to open archive entry %s: %w", file.Name, err)
	}
	defer src.Close()

	mode := file.FileInfo().Mode().Perm()
	if mode == 0 {
		mode = 0644
	}
	dst, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", target, err)
	}

	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to extract %s: %w", file.Name, err)
	}
	return dst.Close()
}

// VerifyStaged checks that every required top-level entry exists in the
// staged tree. A tree failing verification is never swapped in.
func VerifyStaged(stagedRoot string, required []string) error {
	var missing []string
	for _, name := range required {
		if _, err := os.Stat(filepath.Join(stagedRoot, name)); err != nil {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: staged tree missing %s", ErrVerification, strings.Join(missing, ", "))
	}
	return nil
}

// listFiles walks root and returns the relative paths of every regular
// file, sorted.
func listFiles(root string) ([]string, error) {
	var files []string
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			rel, err := filepath.Rel(root, path)
			if err != nil {
				return err
			}
			files = append(files, filepath.ToSlash(rel))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list %s: %w", root, err)
	}
	sort.Strings(files)
	return files, nil
}

// copyTree copies src into dst recursively, skipping top-level entries
// named in skip. dst is created if missing.
func copyTree(src, dst string, skip map[string]bool) error {
	entries, err := os.ReadDir(src)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", src, err)
	}
	if err := os.MkdirAll(dst, 0755); err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	for _, entry := range entries {
		if skip[entry.Name()] {
			continue
		}
		srcPath := filepath.Join(src, entry.Name())
		dstPath := filepath.Join(dst, entry.Name())

		if entry.IsDir() {
			if err := copyTree(srcPath, dstPath, nil); err != nil {
				return err
			}
			continue
		}
		if !entry.Type().IsRegular() {
			continue
		}
		if err := copyFile(srcPath, dstPath); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", src, err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
