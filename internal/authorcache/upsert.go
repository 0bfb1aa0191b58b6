// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"cmp"
	"context"
	"errors"
	"fmt"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// Upsert records one author sighting. It resolves the sighting to an existing
// record by Scopus ID, then ORCID, then the match cascade, and folds the
// sighting into it; otherwise it creates a new record. A sighting with no
// name and no identifier is ignored and returns nil.
//
// A populated identifier is never replaced. A name match whose identifiers
// conflict with the sighting is passed over, so the sighting gets a record
// of its own.
func (c *Cache) Upsert(ctx context.Context, s types.Sighting) (*types.IdentityRecord, error) {
	rec, _, err := c.upsert(ctx, s)
	return rec, err
}

func (c *Cache) upsert(ctx context.Context, s types.Sighting) (*types.IdentityRecord, string, error) {
	if s.IsEmpty() {
		return nil, observability.OutcomeSkipped, nil
	}

	rec, err := c.resolve(ctx, s)
	if err != nil {
		return nil, "", err
	}
	if rec != nil {
		return c.fold(ctx, rec, s)
	}

	rec = c.newRecord(s)
	if err := c.releaseHeldIdentifiers(ctx, rec, nil); err != nil {
		return nil, "", err
	}
	err = c.store.Insert(ctx, rec)
	if errors.Is(err, cachestore.ErrConflict) {
		// Another writer claimed the identifier between lookup and insert.
		existing, ferr := c.findByIdentifier(ctx, s)
		if ferr != nil {
			return nil, "", ferr
		}
		if existing == nil {
			return nil, "", fmt.Errorf("caching %q: %w", s.Name, err)
		}
		c.log.Debug().Int64("id", existing.ID).Msg("identifier already cached, folding sighting into it")
		return c.fold(ctx, existing, s)
	}
	if err != nil {
		return nil, "", fmt.Errorf("caching %q: %w", s.Name, err)
	}

	c.metrics.RecordUpsert(observability.OutcomeCreated)
	c.log.Info().
		Int64("id", rec.ID).
		Str("normalized_name", rec.NormalizedName).
		Str("scopus_id", rec.ScopusID).
		Str("orcid_id", rec.ORCID).
		Msg("identity created")
	return rec, observability.OutcomeCreated, nil
}

// compatibleWith accepts records whose identifiers do not contradict s.
func compatibleWith(s types.Sighting) acceptFunc {
	ids := &types.IdentityRecord{ScopusID: s.ScopusID, ORCID: s.ORCID}
	return func(cand *types.IdentityRecord) bool {
		return !cand.ConflictsWith(ids)
	}
}

// resolve finds the record a sighting belongs to, or nil.
func (c *Cache) resolve(ctx context.Context, s types.Sighting) (*types.IdentityRecord, error) {
	rec, err := c.findByIdentifier(ctx, s)
	if err != nil || rec != nil {
		return rec, err
	}
	if s.Name == "" {
		return nil, nil
	}
	return c.find(ctx, s.Name, true, compatibleWith(s))
}

// findByIdentifier looks the sighting up by Scopus ID, then by ORCID. A
// record holding the other identifier with a different value is passed over.
func (c *Cache) findByIdentifier(ctx context.Context, s types.Sighting) (*types.IdentityRecord, error) {
	accept := compatibleWith(s)
	if s.ScopusID != "" {
		rec, err := c.holder(ctx, c.store.FindByScopusID, s.ScopusID)
		if err != nil {
			return nil, fmt.Errorf("looking up scopus id %s: %w", s.ScopusID, err)
		}
		if rec != nil && accept(rec) {
			return rec, nil
		}
		if rec != nil {
			c.log.Debug().Int64("id", rec.ID).Str("scopus_id", s.ScopusID).Msg("identity holds a conflicting orcid, not folding")
		}
	}
	if s.ORCID != "" {
		rec, err := c.holder(ctx, c.store.FindByORCID, s.ORCID)
		if err != nil {
			return nil, fmt.Errorf("looking up orcid %s: %w", s.ORCID, err)
		}
		if rec != nil && accept(rec) {
			return rec, nil
		}
		if rec != nil {
			c.log.Debug().Int64("id", rec.ID).Str("orcid_id", s.ORCID).Msg("identity holds a conflicting scopus id, not folding")
		}
	}
	return nil, nil
}

// holder returns the record holding id, or nil.
func (c *Cache) holder(ctx context.Context, lookup func(context.Context, string) (*types.IdentityRecord, error), id string) (*types.IdentityRecord, error) {
	rec, err := lookup(ctx, id)
	if errors.Is(err, cachestore.ErrNotFound) {
		return nil, nil
	}
	return rec, err
}

// releaseHeldIdentifiers clears the identifiers of rec that another record
// already holds, leaving the pair for consolidation. prev holds the values
// rec had before the sighting was folded in; nil means rec is new.
func (c *Cache) releaseHeldIdentifiers(ctx context.Context, rec, prev *types.IdentityRecord) error {
	if prev == nil {
		prev = &types.IdentityRecord{}
	}
	release := func(field *string, old string, lookup func(context.Context, string) (*types.IdentityRecord, error), key string) error {
		if *field == "" || *field == old {
			return nil
		}
		h, err := c.holder(ctx, lookup, *field)
		if err != nil {
			return fmt.Errorf("looking up %s %s: %w", key, *field, err)
		}
		if h != nil && h.ID != rec.ID {
			c.log.Debug().Int64("holder_id", h.ID).Str(key, *field).Msg("identifier held by another identity, left for consolidation")
			*field = old
		}
		return nil
	}
	if err := release(&rec.ScopusID, prev.ScopusID, c.store.FindByScopusID, "scopus_id"); err != nil {
		return err
	}
	return release(&rec.ORCID, prev.ORCID, c.store.FindByORCID, "orcid_id")
}

// fold merges a sighting into rec and persists rec if anything changed.
func (c *Cache) fold(ctx context.Context, rec *types.IdentityRecord, s types.Sighting) (*types.IdentityRecord, string, error) {
	out := rec.Clone()
	out.ScopusID = cmp.Or(out.ScopusID, s.ScopusID)
	out.ORCID = cmp.Or(out.ORCID, s.ORCID)
	if err := c.releaseHeldIdentifiers(ctx, out, rec); err != nil {
		return nil, "", err
	}
	out.GivenName = cmp.Or(out.GivenName, s.GivenName)
	out.Surname = cmp.Or(out.Surname, s.Surname)

	changed := out.ScopusID != rec.ScopusID || out.ORCID != rec.ORCID ||
		out.GivenName != rec.GivenName || out.Surname != rec.Surname
	if out.AddVariation(s.Name) {
		changed = true
	}
	if out.AddAffiliations(s.Affiliations...) {
		changed = true
	}
	if conf := c.confidenceFor(out, s); conf > out.ConfidenceScore {
		out.ConfidenceScore = conf
		changed = true
	}

	if !changed {
		c.metrics.RecordUpsert(observability.OutcomeUnchanged)
		return out, observability.OutcomeUnchanged, nil
	}
	err := c.store.Update(ctx, out)
	if errors.Is(err, cachestore.ErrConflict) && (out.ScopusID != rec.ScopusID || out.ORCID != rec.ORCID) {
		// Another writer claimed a new identifier after the check above.
		c.log.Debug().Int64("id", rec.ID).Msg("identifier claimed concurrently, folding without it")
		s.ScopusID, s.ORCID = "", ""
		return c.fold(ctx, rec, s)
	}
	if err != nil {
		return nil, "", fmt.Errorf("updating identity %d: %w", rec.ID, err)
	}
	c.metrics.RecordUpsert(observability.OutcomeUpdated)
	c.log.Debug().Int64("id", rec.ID).Str("name", s.Name).Msg("identity updated")
	return out, observability.OutcomeUpdated, nil
}

// newRecord builds the record for a sighting nothing matched.
func (c *Cache) newRecord(s types.Sighting) *types.IdentityRecord {
	comp := c.extract(s.Name)

	rec := &types.IdentityRecord{
		NameVariations: []string{},
		ScopusID:       s.ScopusID,
		ORCID:          s.ORCID,
		GivenName:      s.GivenName,
		Surname:        s.Surname,
		Affiliations:   []string{},
		Source:         types.ParseSource(string(s.Source)),
		LookupCount:    1,
	}
	rec.AddVariation(s.Name)
	rec.AddAffiliations(s.Affiliations...)

	if comp.IsEmpty() {
		rec.NormalizedName = c.normalize(s.Surname)
	} else {
		rec.NormalizedName = c.normalize(comp.Canonical())
	}
	if rec.GivenName == "" && len(comp.GivenNames) > 0 {
		rec.GivenName = comp.GivenNames[0]
	}
	if rec.Surname == "" {
		rec.Surname = comp.Surname
	}
	rec.ConfidenceScore = c.confidenceFor(rec, s)
	return rec
}

// confidenceFor returns the confidence rec earns from s: the larger of its
// current and the sighting's, floored for records holding an identifier.
func (c *Cache) confidenceFor(rec *types.IdentityRecord, s types.Sighting) float64 {
	conf := max(rec.ConfidenceScore, clamp01(s.ConfidenceOrDefault()))
	if rec.HasIdentifier() {
		conf = max(conf, c.cfg.IdentifierConfidence)
	}
	return conf
}

func clamp01(v float64) float64 {
	return min(max(v, 0), 1)
}
