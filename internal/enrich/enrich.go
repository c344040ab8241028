// Package enrich supplies optional descriptive text for package records.
//
// Enrichers are capability plugins: the merge engine asks each record's
// (name, type) pair for a description and usage example, and treats any
// failure as "no enrichment available" rather than an error. The default
// chain is Static (curated tables plus type-based fallbacks); an Ollama
// provider can be layered in front when a local model is running.
package enrich

import (
	"context"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
)

// Enrichment is the descriptive text a provider produced for a record.
// Empty fields mean the provider had nothing for that field.
type Enrichment struct {
	Description string
	Example     string
}

// Enricher supplies optional description/example text per (name, type).
// A nil result with a nil error means the provider has nothing to offer;
// callers must treat errors the same way for individual records.
type Enricher interface {
	Supply(ctx context.Context, name string, recordType brewfile.RecordType) (*Enrichment, error)
}

// Noop is the default Enricher: it never supplies anything.
type Noop struct{}

// Supply implements Enricher.
func (Noop) Supply(ctx context.Context, name string, recordType brewfile.RecordType) (*Enrichment, error) {
	return nil, nil
}

// Chain tries each provider in order and returns the first non-nil
// enrichment. Provider errors are skipped, not propagated.
type Chain []Enricher

// Supply implements Enricher.
func (c Chain) Supply(ctx context.Context, name string, recordType brewfile.RecordType) (*Enrichment, error) {
	for _, e := range c {
		result, err := e.Supply(ctx, name, recordType)
		if err != nil || result == nil {
			continue
		}
		return result, nil
	}
	return nil, nil
}
