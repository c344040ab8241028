package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

const recordColumns = "name, type, description, example, source_id, user_edited, last_seen, last_edited"

// UpsertRecord writes the full record state in a single statement, so a
// crash mid-upsert can never leave a half-written row. Merge decisions
// (which fields carry over from the previous row) belong to the merge
// engine; the store persists whatever state it computed.
func (s *Store) UpsertRecord(rec *PackageRecord) error {
	query := `
		INSERT OR REPLACE INTO tools
		(name, type, description, example, source_id, user_edited, last_seen, last_edited)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := s.db.Exec(query,
		rec.Name,
		string(rec.Type),
		rec.Description,
		rec.Example,
		rec.SourceID,
		rec.UserEdited,
		formatTime(rec.LastSeen),
		formatTime(rec.LastEdited),
	)

	if err != nil {
		return fmt.Errorf("failed to upsert record %s/%s: %w", rec.Type, rec.Name, err)
	}

	return nil
}

// GetRecord retrieves a record by its (name, type) key.
func (s *Store) GetRecord(name string, recordType brewfile.RecordType) (*PackageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM tools WHERE name = ? AND type = ?`

	rec, err := scanRecord(s.db.QueryRow(query, name, string(recordType)))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("record %s/%s: %w", recordType, name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get record %s/%s: %w", recordType, name, err)
	}

	return rec, nil
}

// ListRecords returns all records ordered by name.
func (s *Store) ListRecords() ([]*PackageRecord, error) {
	query := `SELECT ` + recordColumns + ` FROM tools ORDER BY lower(name), type`
	return s.queryRecords(query)
}

// SearchRecords returns records whose name, description, or example
// contains the query substring (case-insensitive), optionally filtered
// by type. An empty query matches everything.
func (s *Store) SearchRecords(q string, recordType brewfile.RecordType) ([]*PackageRecord, error) {
	var (
		conditions []string
		args       []any
	)

	if q != "" {
		pattern := "%" + escapeLike(q) + "%"
		conditions = append(conditions,
			`(name LIKE ? ESCAPE '\' OR description LIKE ? ESCAPE '\' OR example LIKE ? ESCAPE '\')`)
		args = append(args, pattern, pattern, pattern)
	}
	if recordType != "" {
		conditions = append(conditions, "type = ?")
		args = append(args, string(recordType))
	}

	query := `SELECT ` + recordColumns + ` FROM tools`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY lower(name), type"

	return s.queryRecords(query, args...)
}

// CountsByType returns the number of records per type, ordered by type.
func (s *Store) CountsByType() ([]TypeCount, error) {
	rows, err := s.db.Query("SELECT type, COUNT(*) FROM tools GROUP BY type ORDER BY type")
	if err != nil {
		return nil, fmt.Errorf("failed to count records: %w", err)
	}
	defer rows.Close()

	var counts []TypeCount
	for rows.Next() {
		var (
			t string
			c TypeCount
		)
		if err := rows.Scan(&t, &c.Count); err != nil {
			return nil, fmt.Errorf("failed to scan count row: %w", err)
		}
		c.Type = brewfile.RecordType(t)
		counts = append(counts, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating counts: %w", err)
	}

	return counts, nil
}

// RecentlyEdited returns records whose last_edited falls within the
// last N days, newest first. Records created by a merge pass count as
// recent, by design: a fresh sighting should surface immediately.
func (s *Store) RecentlyEdited(days int) ([]*PackageRecord, error) {
	cutoff := time.Now().AddDate(0, 0, -days)

	query := `
		SELECT ` + recordColumns + `
		FROM tools
		WHERE last_edited >= ?
		ORDER BY last_edited DESC, lower(name)
	`

	return s.queryRecords(query, formatTime(cutoff))
}

// ApplyUserEdit updates the user-editable fields of a record. It always
// marks the record user-edited and bumps last_edited, bypassing any
// merge suppression: an explicit edit wins over parsed data from then on.
func (s *Store) ApplyUserEdit(name string, recordType brewfile.RecordType, edit UserEdit) (*PackageRecord, error) {
	existing, err := s.GetRecord(name, recordType)
	if err != nil {
		return nil, err
	}

	description := existing.Description
	if edit.Description != nil {
		description = *edit.Description
	}
	example := existing.Example
	if edit.Example != nil {
		example = *edit.Example
	}

	now := time.Now()
	if now.Before(existing.LastEdited) {
		// last_edited is monotonically non-decreasing even if the
		// wall clock stepped backwards.
		now = existing.LastEdited
	}

	query := `
		UPDATE tools
		SET description = ?, example = ?, user_edited = 1, last_edited = ?
		WHERE name = ? AND type = ?
	`

	if _, err := s.db.Exec(query, description, example, formatTime(now), name, string(recordType)); err != nil {
		return nil, fmt.Errorf("failed to apply edit to %s/%s: %w", recordType, name, err)
	}

	return s.GetRecord(name, recordType)
}

func (s *Store) queryRecords(query string, args ...any) ([]*PackageRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	defer rows.Close()

	var records []*PackageRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan record row: %w", err)
		}
		records = append(records, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}

	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*PackageRecord, error) {
	var (
		rec        PackageRecord
		recType    string
		lastSeen   string
		lastEdited string
	)

	err := row.Scan(
		&rec.Name,
		&recType,
		&rec.Description,
		&rec.Example,
		&rec.SourceID,
		&rec.UserEdited,
		&lastSeen,
		&lastEdited,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = brewfile.RecordType(recType)
	if rec.LastSeen, err = parseTime(lastSeen); err != nil {
		return nil, fmt.Errorf("failed to parse last_seen for %s: %w", rec.Name, err)
	}
	if rec.LastEdited, err = parseTime(lastEdited); err != nil {
		return nil, fmt.Errorf("failed to parse last_edited for %s: %w", rec.Name, err)
	}

	return &rec, nil
}

// formatTime stores timestamps as RFC3339 strings in UTC. The fixed
// width keeps string comparison in SQL consistent with time ordering.
// Zero times become empty strings so pre-migration rows and "never"
// mean the same thing.
func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, s)
}

// escapeLike escapes LIKE wildcards in user-supplied search input.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
