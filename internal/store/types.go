package store

import (
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

// PackageRecord is one annotated package entry, keyed by (name, type).
// Description and Example are user-editable; once UserEdited is set the
// merge engine stops refreshing them from parsed data.
type PackageRecord struct {
	Name        string
	Type        brewfile.RecordType
	Description string
	Example     string
	SourceID    string
	UserEdited  bool
	LastSeen    time.Time
	LastEdited  time.Time
}

// TypeCount is an aggregate row count for one record type.
type TypeCount struct {
	Type  brewfile.RecordType
	Count int
}

// UserEdit holds the fields a user may change through the API. Nil
// pointers leave the current value untouched.
type UserEdit struct {
	Description *string
	Example     *string
}
