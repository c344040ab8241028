package enrich

import (
	"context"
	"fmt"
	"strings"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

// Curated example commands for common CLI tools.
var knownExamples = map[string]string{
	"ack":     "ack -i 'pattern' lib/",
	"ag":      "ag 'TODO' src",
	"bat":     "bat -n README.md",
	"btop":    "btop",
	"delta":   "git diff | delta",
	"dust":    "dust -r .",
	"eza":     "eza -lah --git",
	"fd":      "fd pattern src",
	"fzf":     "fd . | fzf",
	"git":     "git status",
	"htop":    "htop",
	"jq":      "jq '.name' package.json",
	"neovim":  "nvim file.txt",
	"ripgrep": "rg -n 'foo' src",
	"tmux":    "tmux new -s dev",
	"tree":    "tree -L 2",
	"zoxide":  "z project",
}

// Curated descriptions for tools whose names don't explain themselves.
var knownDescriptions = map[brewfile.RecordType]map[string]string{
	brewfile.TypeBrew: {
		"ack":     "Text search tool optimized for source code",
		"ag":      "Fast code search tool similar to ack but faster",
		"bat":     "Syntax-highlighted cat command with Git integration",
		"delta":   "Syntax-highlighting pager for Git diffs",
		"dust":    "Modern disk usage analyzer with tree visualization",
		"eza":     "Modern ls replacement with colors and Git status",
		"fd":      "Simple and fast alternative to find command",
		"fzf":     "Command-line fuzzy finder for interactive selections",
		"git":     "Distributed version control system",
		"htop":    "Interactive process viewer and system monitor",
		"jq":      "Command-line JSON processor",
		"neovim":  "Modern Vim-based text editor",
		"ripgrep": "Fast text search tool that recursively searches directories",
		"tmux":    "Terminal multiplexer for managing multiple sessions",
		"tree":    "Directory listing tool that displays files in tree format",
	},
	brewfile.TypeCask: {
		"1password":          "Password manager for storing and generating secure passwords",
		"docker":             "Platform for developing and running containerized applications",
		"firefox":            "Open-source web browser focused on privacy",
		"google-chrome":      "Fast and secure web browser from Google",
		"visual-studio-code": "Lightweight but powerful source code editor",
		"zoom":               "Video conferencing and online meeting platform",
	},
	brewfile.TypeMas: {
		"Fantastical": "Premium calendar app with natural language event creation",
		"Xcode":       "Apple's integrated development environment for iOS/macOS apps",
	},
	brewfile.TypeTap: {
		"homebrew/bundle":   "Homebrew tap for managing dependencies with Brewfiles",
		"homebrew/services": "Homebrew tap for managing background services",
	},
}

// Static supplies curated descriptions and examples, falling back to
// generic type-based text. It always produces something, which makes it
// the natural tail of an enricher chain.
type Static struct{}

// Supply implements Enricher.
func (Static) Supply(ctx context.Context, name string, recordType brewfile.RecordType) (*Enrichment, error) {
	return &Enrichment{
		Description: describe(name, recordType),
		Example:     exampleFor(name, recordType),
	}, nil
}

func describe(name string, recordType brewfile.RecordType) string {
	if desc, ok := knownDescriptions[recordType][name]; ok {
		return desc
	}

	readable := strings.NewReplacer("-", " ", "_", " ").Replace(name)
	switch recordType {
	case brewfile.TypeBrew:
		return "Command-line tool: " + readable
	case brewfile.TypeCask:
		return "macOS application: " + readable
	case brewfile.TypeMas:
		return "Mac App Store application"
	case brewfile.TypeTap:
		return "Homebrew tap providing additional software packages"
	}
	return fmt.Sprintf("%s: %s", recordType, name)
}

func exampleFor(name string, recordType brewfile.RecordType) string {
	switch recordType {
	case brewfile.TypeBrew:
		if example, ok := knownExamples[name]; ok {
			return example
		}
		return name + " --help"
	case brewfile.TypeCask:
		return "Open " + name + " from Applications folder"
	case brewfile.TypeMas:
		return "Install " + name + " from Mac App Store"
	case brewfile.TypeTap:
		return "brew tap " + name
	}
	return name + " --help"
}
