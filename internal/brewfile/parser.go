package brewfile

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Line patterns for Brewfile directives. Robust to single/double quotes
// and arbitrary spacing, matching the formats `brew bundle dump` emits.
var patterns = map[RecordType]*regexp.Regexp{
	TypeBrew: regexp.MustCompile(`(?i)^\s*brew\s*["']([^"']+)["']`),
	TypeCask: regexp.MustCompile(`(?i)^\s*cask\s*["']([^"']+)["']`),
	TypeMas:  regexp.MustCompile(`(?i)^\s*mas\s*["']([^"']+)["']\s*,\s*id:\s*(\d+)`),
	TypeTap:  regexp.MustCompile(`(?i)^\s*tap\s*["']([^"']+)["']`),
}

// Parse extracts records of the given types from Brewfile content.
// Blank lines and comments are skipped. A single Brewfile may contain
// all directive kinds, so callers pass the full type set for it; split
// Brewfiles are parsed with just their own type.
func Parse(r io.Reader, types []RecordType) ([]ParsedRecord, error) {
	var records []ParsedRecord

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		for _, t := range types {
			pattern, ok := patterns[t]
			if !ok {
				continue
			}

			match := pattern.FindStringSubmatch(line)
			if match == nil {
				continue
			}

			record := ParsedRecord{Name: match[1], Type: t}
			if t == TypeMas && len(match) > 2 {
				record.SourceID = match[2]
			}
			records = append(records, record)
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read Brewfile: %w", err)
	}

	return records, nil
}

// ParseFile parses a Brewfile on disk for the given record types.
func ParseFile(path string, types []RecordType) ([]ParsedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open Brewfile %s: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(f, types)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}

	return records, nil
}

// Collect parses every detected Brewfile and returns the deduplicated
// record set. A single Brewfile mapped to multiple types is read once
// per type; Dedupe collapses any overlap.
func Collect(files map[RecordType]string) ([]ParsedRecord, error) {
	var all []ParsedRecord

	for _, t := range AllTypes() {
		path, ok := files[t]
		if !ok || path == "" {
			continue
		}
		if _, err := os.Stat(path); err != nil {
			continue
		}

		records, err := ParseFile(path, []RecordType{t})
		if err != nil {
			return nil, err
		}
		all = append(all, records...)
	}

	return Dedupe(all), nil
}

// Dedupe removes duplicate records while preserving order. Identity is
// the (lowercased name, type) pair, matching the store's uniqueness key.
func Dedupe(records []ParsedRecord) []ParsedRecord {
	seen := make(map[string]bool, len(records))
	unique := make([]ParsedRecord, 0, len(records))

	for _, r := range records {
		key := strings.ToLower(r.Name) + "\x00" + string(r.Type)
		if seen[key] {
			continue
		}
		seen[key] = true
		unique = append(unique, r)
	}

	return unique
}
