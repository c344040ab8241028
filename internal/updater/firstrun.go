package updater

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

// FirstRunMarker records that the user was asked once whether scheduled
// self-updates should be enabled. Scheduled mode declines to run until
// this consent exists.
type FirstRunMarker struct {
	PromptedAt time.Time `json:"prompted_at"`
	Enabled    bool      `json:"enabled"`
}

// LoadFirstRun reads the marker. A missing file means the user was
// never prompted.
func LoadFirstRun(path string) (*FirstRunMarker, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read first-run marker: %w", err)
	}

	var marker FirstRunMarker
	if err := json.Unmarshal(data, &marker); err != nil {
		return nil, fmt.Errorf("failed to parse first-run marker %s: %w", path, err)
	}
	return &marker, nil
}

// RecordFirstRun writes the marker with the user's choice.
func RecordFirstRun(path string, enabled bool) error {
	marker := FirstRunMarker{PromptedAt: time.Now().UTC(), Enabled: enabled}
	data, err := json.MarshalIndent(marker, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal first-run marker: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write first-run marker: %w", err)
	}
	return nil
}

// PromptFirstRun asks on out and reads a yes/no answer from in. Empty
// input and anything not starting with "y" count as no.
func PromptFirstRun(in io.Reader, out io.Writer, repo string) (bool, error) {
	fmt.Fprintf(out, "Enable automatic update checks from %s? [y/N]: ", repo)

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return false, fmt.Errorf("failed to read first-run answer: %w", err)
	}

	answer := strings.ToLower(strings.TrimSpace(line))
	return strings.HasPrefix(answer, "y"), nil
}

// ScheduleRegistrar installs the recurring update check with whatever
// the host offers (launchd, cron). The default does nothing but log,
// leaving scheduling to the user's own automation.
type ScheduleRegistrar interface {
	Register(interval time.Duration) error
}

// LogRegistrar is the default ScheduleRegistrar: it prints the command
// the user should schedule instead of touching the host configuration.
type LogRegistrar struct {
	Logf func(format string, args ...any)
}

func (r LogRegistrar) Register(interval time.Duration) error {
	if r.Logf != nil {
		r.Logf("Schedule 'brewfile-analyzer update --scheduled' every %s with your scheduler of choice", interval)
	}
	return nil
}
