// Package output renders terminal tables for package records, type
// counts, and recent-edit listings. ASCII layout with ANSI color when
// stdout is a TTY.
package output

import (
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-isatty"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
	"github.com/nwhistler/brewfile-analyzer/internal/store"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorGray   = "\033[90m"
)

// IsColorEnabled returns true if ANSI color codes should be emitted.
// It checks that os.Stdout is a TTY and that the NO_COLOR env var is
// not set.
func IsColorEnabled() bool {
	if os.Getenv("NO_COLOR") != "" {
		return false
	}
	return isatty.IsTerminal(os.Stdout.Fd())
}

// RenderRecordTable renders a table of package records sorted by name.
func RenderRecordTable(records []*store.PackageRecord) string {
	if len(records) == 0 {
		return "No tools found.\n"
	}

	sorted := make([]*store.PackageRecord, len(records))
	copy(sorted, records)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Name != sorted[j].Name {
			return sorted[i].Name < sorted[j].Name
		}
		return sorted[i].Type < sorted[j].Type
	})

	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("%-24s %-6s %-44s %s\n",
		"Tool", "Type", "Description", "Edited"))
	sb.WriteString(strings.Repeat("─", 84))
	sb.WriteString("\n")

	for _, rec := range sorted {
		edited := ""
		if rec.UserEdited {
			edited = editedMarker()
		}
		sb.WriteString(fmt.Sprintf("%-24s %-6s %-44s %s\n",
			truncate(rec.Name, 24),
			rec.Type,
			truncate(rec.Description, 44),
			edited))
	}

	return sb.String()
}

func editedMarker() string {
	if IsColorEnabled() {
		return colorGreen + "✓ edited" + colorReset
	}
	return "✓ edited"
}

// RenderCountsTable renders per-type record counts with a total line.
func RenderCountsTable(counts []store.TypeCount) string {
	if len(counts) == 0 {
		return "No tools in the database.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-8s %s\n", "Type", "Count"))
	sb.WriteString(strings.Repeat("─", 16))
	sb.WriteString("\n")

	total := 0
	for _, tc := range counts {
		sb.WriteString(fmt.Sprintf("%-8s %d\n", tc.Type, tc.Count))
		total += tc.Count
	}
	sb.WriteString(strings.Repeat("─", 16))
	sb.WriteString("\n")
	sb.WriteString(fmt.Sprintf("%-8s %d\n", "total", total))

	return sb.String()
}

// RenderRecentTable renders recently edited records, newest first.
func RenderRecentTable(records []*store.PackageRecord) string {
	if len(records) == 0 {
		return "No recent edits.\n"
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%-24s %-6s %s\n", "Tool", "Type", "Edited"))
	sb.WriteString(strings.Repeat("─", 52))
	sb.WriteString("\n")

	for _, rec := range records {
		sb.WriteString(fmt.Sprintf("%-24s %-6s %s\n",
			truncate(rec.Name, 24),
			rec.Type,
			formatRelativeTime(rec.LastEdited)))
	}

	return sb.String()
}

// RenderSyncSummary renders the one-line result of a merge run.
func RenderSyncSummary(accepted, rejected, created, updated, preserved int) string {
	summary := fmt.Sprintf("Synced %d records: %d new, %d refreshed, %d user-edited preserved",
		accepted, created, updated, preserved)
	if rejected > 0 {
		summary += fmt.Sprintf(", %d rejected", rejected)
	}
	return summary
}

// TypeLabel colorizes a record type for terminal display.
func TypeLabel(rt brewfile.RecordType) string {
	if !IsColorEnabled() {
		return string(rt)
	}
	switch rt {
	case brewfile.TypeBrew:
		return colorGreen + string(rt) + colorReset
	case brewfile.TypeCask:
		return colorCyan + string(rt) + colorReset
	case brewfile.TypeMas:
		return colorYellow + string(rt) + colorReset
	default:
		return colorGray + string(rt) + colorReset
	}
}

// formatRelativeTime converts a timestamp to relative time (e.g., "2 days ago").
func formatRelativeTime(t time.Time) string {
	if t.IsZero() {
		return "never"
	}

	now := time.Now()
	diff := now.Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	case diff < 30*24*time.Hour:
		weeks := int(diff.Hours() / 24 / 7)
		if weeks == 1 {
			return "1 week ago"
		}
		return fmt.Sprintf("%d weeks ago", weeks)
	case diff < 365*24*time.Hour:
		months := int(diff.Hours() / 24 / 30)
		if months == 1 {
			return "1 month ago"
		}
		return fmt.Sprintf("%d months ago", months)
	default:
		years := int(diff.Hours() / 24 / 365)
		if years == 1 {
			return "1 year ago"
		}
		return fmt.Sprintf("%d years ago", years)
	}
}

// truncate truncates a string to maxLen, adding "..." if truncated.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}
