// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"context"
	"fmt"

	"github.com/pdiddy/cvdb/pkg/types"
)

// VerifiedIDs carries identifiers confirmed by an external check.
type VerifiedIDs struct {
	ScopusID string
	ORCID    string
}

// Verify stamps record id as verified by method and records any confirmed
// identifiers it lacked. Adding an identifier raises confidence by the
// configured boost. A confirmed identifier that differs from a populated one
// fails with ErrIdentifierConflict and leaves the record untouched.
func (c *Cache) Verify(ctx context.Context, id int64, method string, ids VerifiedIDs) (*types.IdentityRecord, error) {
	rec, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("loading identity %d: %w", id, err)
	}

	if types.IdentifiersConflict(rec.ScopusID, ids.ScopusID) {
		return nil, fmt.Errorf("identity %d scopus id %s, verified %s: %w", id, rec.ScopusID, ids.ScopusID, ErrIdentifierConflict)
	}
	if types.IdentifiersConflict(rec.ORCID, ids.ORCID) {
		return nil, fmt.Errorf("identity %d orcid %s, verified %s: %w", id, rec.ORCID, ids.ORCID, ErrIdentifierConflict)
	}

	added := false
	if rec.ScopusID == "" && ids.ScopusID != "" {
		rec.ScopusID = ids.ScopusID
		added = true
	}
	if rec.ORCID == "" && ids.ORCID != "" {
		rec.ORCID = ids.ORCID
		added = true
	}
	if added {
		rec.ConfidenceScore = max(rec.ConfidenceScore, min(1, rec.ConfidenceScore+c.cfg.ConfidenceBoost))
	}

	now := c.now().UTC()
	rec.LastVerified = &now
	rec.VerificationMethod = method

	if err := c.store.Update(ctx, rec); err != nil {
		return nil, fmt.Errorf("saving verification of %d: %w", id, err)
	}
	c.log.Info().Int64("id", id).Str("method", method).Bool("identifiers_added", added).Msg("identity verified")
	return rec, nil
}
