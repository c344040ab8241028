// Package merge reconciles freshly parsed Brewfile records against the
// persistent store without destroying user edits.
package merge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nwhistler/brewfile-analyzer/internal/brewfile"
	"github.com/nwhistler/brewfile-analyzer/internal/enrich"
	"github.com/nwhistler/brewfile-analyzer/internal/store"
)

// Report summarizes one merge pass. Rejected counts malformed parsed
// records that were skipped; the batch itself never aborts on them.
type Report struct {
	Accepted  int // parsed records that passed validation
	Rejected  int // malformed records skipped
	Created   int // records inserted on first sighting
	Updated   int // existing records refreshed from parse/enrichment
	Preserved int // user-edited records whose text was left untouched
}

// Engine applies merge semantics between parsed records and the store.
type Engine struct {
	store    *store.Store
	enricher enrich.Enricher

	// now is swappable for tests
	now func() time.Time
}

// New creates a merge engine. A nil enricher behaves like enrich.Noop.
func New(s *store.Store, e enrich.Enricher) *Engine {
	if e == nil {
		e = enrich.Noop{}
	}
	return &Engine{store: s, enricher: e, now: time.Now}
}

// Run reconciles the parsed set into the store:
//
//   - unseen records are created, with last_edited set to now so they
//     surface in recent views immediately;
//   - existing non-user-edited records get their description/example
//     refreshed from enrichment;
//   - user-edited records keep their text unless force is set;
//   - last_seen always advances.
//
// Records absent from the parsed set are retained untouched; their
// stale last_seen is how absence surfaces. The pass is idempotent:
// re-running with the same input changes only last_seen.
func (e *Engine) Run(ctx context.Context, parsed []brewfile.ParsedRecord, force bool) (*Report, error) {
	report := &Report{}
	now := e.now().Truncate(time.Second)

	for _, p := range parsed {
		if err := ctx.Err(); err != nil {
			return report, err
		}

		if p.Name == "" || !p.Type.Valid() {
			report.Rejected++
			continue
		}
		report.Accepted++

		existing, err := e.store.GetRecord(p.Name, p.Type)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if err := e.create(ctx, p, now); err != nil {
				return report, err
			}
			report.Created++

		case err != nil:
			return report, fmt.Errorf("merge lookup failed: %w", err)

		default:
			preserved, err := e.refresh(ctx, existing, p, now, force)
			if err != nil {
				return report, err
			}
			if preserved {
				report.Preserved++
			} else {
				report.Updated++
			}
		}
	}

	return report, nil
}

func (e *Engine) create(ctx context.Context, p brewfile.ParsedRecord, now time.Time) error {
	rec := &store.PackageRecord{
		Name:     p.Name,
		Type:     p.Type,
		SourceID: p.SourceID,
		LastSeen: now,
		// A record created by the merge gets last_edited set to its
		// creation time so it ranks as recent alongside fresh edits.
		LastEdited: now,
	}

	if enrichment := e.supply(ctx, p); enrichment != nil {
		rec.Description = enrichment.Description
		rec.Example = enrichment.Example
	}

	return e.store.UpsertRecord(rec)
}

// refresh advances last_seen and, unless the record is user-edited and
// no force override was requested, refreshes the parser-sourced text.
// Returns true when user-edited text was preserved.
func (e *Engine) refresh(ctx context.Context, existing *store.PackageRecord, p brewfile.ParsedRecord, now time.Time, force bool) (bool, error) {
	next := *existing
	next.LastSeen = now
	if p.SourceID != "" {
		next.SourceID = p.SourceID
	}

	preserved := existing.UserEdited && !force
	if !preserved {
		if enrichment := e.supply(ctx, p); enrichment != nil {
			if enrichment.Description != "" {
				next.Description = enrichment.Description
			}
			if enrichment.Example != "" {
				next.Example = enrichment.Example
			}
		}
	}

	if err := e.store.UpsertRecord(&next); err != nil {
		return false, err
	}
	return preserved, nil
}

// supply asks the enricher for text, treating any failure as "nothing
// available" so a flaky provider can never abort a batch.
func (e *Engine) supply(ctx context.Context, p brewfile.ParsedRecord) *enrich.Enrichment {
	enrichment, err := e.enricher.Supply(ctx, p.Name, p.Type)
	if err != nil {
		return nil
	}
	return enrichment
}
