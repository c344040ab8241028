package brewfile

// RecordType identifies which Brewfile directive produced a record.
type RecordType string

const (
	TypeBrew RecordType = "brew"
	TypeCask RecordType = "cask"
	TypeMas  RecordType = "mas"
	TypeTap  RecordType = "tap"
)

// AllTypes returns the closed set of record types in parse order.
func AllTypes() []RecordType {
	return []RecordType{TypeBrew, TypeCask, TypeMas, TypeTap}
}

// Valid reports whether t is one of the known record types.
func (t RecordType) Valid() bool {
	switch t {
	case TypeBrew, TypeCask, TypeMas, TypeTap:
		return true
	}
	return false
}

// ParsedRecord is a single package entry extracted from a Brewfile.
// SourceID carries the Mac App Store ID for mas entries and is empty
// for everything else.
type ParsedRecord struct {
	Name     string
	Type     RecordType
	SourceID string
}
