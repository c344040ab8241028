// Package lock provides the host-local mutual exclusion marker that
// keeps two synchronization or self-update runs from racing. It is a
// non-waiting primitive: a second caller gets ErrBusy and is expected
// to skip its run, not queue.
package lock

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/shirou/gopsutil/v3/process"
)

// ErrBusy is returned when another live process holds the lock.
var ErrBusy = errors.New("another operation is already in progress")

// Record is the lock file content: enough to identify the holder and
// decide whether it is still alive.
type Record struct {
	PID        int       `json:"pid"`
	Operation  string    `json:"operation"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Handle represents a held lock. Release it on every exit path.
type Handle struct {
	path   string
	record Record

	// Recovered is set when this acquisition reclaimed a stale lock
	// left behind by a dead process. Callers must log it; crash
	// recovery should never be silent.
	Recovered bool
}

// Operation returns the operation name recorded at acquisition.
func (h *Handle) Operation() string {
	return h.record.Operation
}

// Acquire creates the lock file at path, failing with ErrBusy if a
// live process already holds it. A lock whose recorded holder is no
// longer running is reclaimed and the returned handle notes the
// recovery.
func Acquire(path, operation string) (*Handle, error) {
	recovered := false

	for attempt := 0; attempt < 2; attempt++ {
		handle, err := tryCreate(path, operation)
		if err == nil {
			handle.Recovered = recovered
			return handle, nil
		}
		if !os.IsExist(err) {
			return nil, fmt.Errorf("failed to create lock file %s: %w", path, err)
		}

		holder, readErr := readRecord(path)
		if readErr == nil && pidAlive(holder.PID) {
			return nil, fmt.Errorf("%w: %s held by pid %d since %s",
				ErrBusy, holder.Operation, holder.PID, holder.AcquiredAt.Format(time.RFC3339))
		}

		// Holder is dead (or the file is unreadable garbage): reclaim
		// and retry the exclusive create once.
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to reclaim stale lock %s: %w", path, err)
		}
		recovered = true
	}

	return nil, fmt.Errorf("%w: lock %s contested", ErrBusy, path)
}

// Release removes the lock file. It refuses to remove a lock that has
// been taken over by another process, which can happen if this process
// was wrongly declared dead and its lock reclaimed.
func (h *Handle) Release() error {
	current, err := readRecord(h.path)
	if err == nil && current.PID != h.record.PID {
		return fmt.Errorf("lock %s is now held by pid %d, refusing to release", h.path, current.PID)
	}

	if err := os.Remove(h.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to release lock %s: %w", h.path, err)
	}
	return nil
}

func tryCreate(path, operation string) (*Handle, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, err
	}

	record := Record{
		PID:        os.Getpid(),
		Operation:  operation,
		AcquiredAt: time.Now(),
	}

	if err := json.NewEncoder(f).Encode(record); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("failed to write lock record: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("failed to close lock file: %w", err)
	}

	return &Handle{path: path, record: record}, nil
}

func readRecord(path string) (Record, error) {
	var record Record

	data, err := os.ReadFile(path)
	if err != nil {
		return record, err
	}
	if err := json.Unmarshal(data, &record); err != nil {
		return record, fmt.Errorf("malformed lock file %s: %w", path, err)
	}
	return record, nil
}

// pidAlive reports whether the recorded holder process still exists.
func pidAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	alive, err := process.PidExists(int32(pid))
	if err != nil {
		// Can't tell; assume alive rather than stealing a live lock.
		return true
	}
	return alive
}
