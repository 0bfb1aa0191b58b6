// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pdiddy/cvdb/internal/names"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// acceptFunc decides whether the cascade may return a candidate.
type acceptFunc func(*types.IdentityRecord) bool

func acceptAll(*types.IdentityRecord) bool { return true }

// Find resolves name to a cached identity record. It tries exact variant
// lookups first, then (when fuzzy is set) a surname-gated similarity scan
// and an edit-distance fallback. A hit has its lookup count incremented and
// persisted. A miss returns nil and no error.
func (c *Cache) Find(ctx context.Context, name string, fuzzy bool) (*types.IdentityRecord, error) {
	return c.find(ctx, name, fuzzy, acceptAll)
}

func (c *Cache) find(ctx context.Context, name string, fuzzy bool, accept acceptFunc) (*types.IdentityRecord, error) {
	comp := c.extract(name)
	if comp.IsEmpty() {
		return nil, nil
	}
	log := c.log.With().Str("name", name).Logger()

	rec, err := c.findExact(ctx, comp, accept)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return c.hit(ctx, rec, observability.PhaseExact, log)
	}

	if !fuzzy {
		c.metrics.RecordMiss()
		return nil, nil
	}

	rec, score, err := c.findSimilar(ctx, comp, accept)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		log.Debug().Float64("score", score).Msg("similarity candidate accepted")
		return c.hit(ctx, rec, observability.PhaseFuzzy, log)
	}

	rec, err = c.findNear(ctx, comp, accept)
	if err != nil {
		return nil, err
	}
	if rec != nil {
		return c.hit(ctx, rec, observability.PhaseEdit, log)
	}

	c.metrics.RecordMiss()
	log.Debug().Msg("no cached identity")
	return nil, nil
}

// findExact looks every variant up by normalized name, richest first.
func (c *Cache) findExact(ctx context.Context, comp names.Components, accept acceptFunc) (*types.IdentityRecord, error) {
	for _, v := range comp.Ranked() {
		found, err := c.store.FindByNormalizedName(ctx, v)
		if err != nil {
			return nil, fmt.Errorf("exact lookup %q: %w", v, err)
		}
		for _, rec := range found {
			if accept(rec) {
				return rec, nil
			}
		}
	}
	return nil, nil
}

// findSimilar scans surname candidates and returns the best one scoring at
// least the similarity threshold.
func (c *Cache) findSimilar(ctx context.Context, comp names.Components, accept acceptFunc) (*types.IdentityRecord, float64, error) {
	candidates, err := c.store.FindByNameContaining(ctx, comp.Surname, c.cfg.FuzzyCandidates)
	if err != nil {
		return nil, 0, fmt.Errorf("surname candidates %q: %w", comp.Surname, err)
	}

	var best *types.IdentityRecord
	var bestScore float64
	for _, cand := range candidates {
		cc := c.recordComponents(cand)
		if cc.Surname != comp.Surname || !accept(cand) {
			continue
		}
		score := names.Similarity(comp, cc)
		if score >= c.cfg.SimilarityThreshold && score > bestScore {
			best, bestScore = cand, score
		}
	}
	return best, bestScore, nil
}

// findNear returns the first surname candidate within the edit distance
// limit of the richest variant.
func (c *Cache) findNear(ctx context.Context, comp names.Components, accept acceptFunc) (*types.IdentityRecord, error) {
	primary := comp.Primary()
	if len(primary) < c.cfg.MinFuzzyLength {
		return nil, nil
	}
	candidates, err := c.store.FindByNameContaining(ctx, comp.Surname, c.cfg.EditCandidates)
	if err != nil {
		return nil, fmt.Errorf("edit distance candidates %q: %w", comp.Surname, err)
	}
	for _, cand := range candidates {
		if names.NearMatch(primary, cand.NormalizedName, c.cfg.MaxEditDistance, c.cfg.MinFuzzyLength) && accept(cand) {
			return cand, nil
		}
	}
	return nil, nil
}

// hit records a cascade match and persists the lookup count.
func (c *Cache) hit(ctx context.Context, rec *types.IdentityRecord, phase string, log zerolog.Logger) (*types.IdentityRecord, error) {
	if err := c.store.IncrementLookup(ctx, rec.ID); err != nil {
		return nil, fmt.Errorf("incrementing lookup count of %d: %w", rec.ID, err)
	}
	rec.LookupCount++
	c.metrics.RecordMatch(phase)
	log.Debug().
		Str("phase", phase).
		Int64("id", rec.ID).
		Str("matched", rec.NormalizedName).
		Msg("cached identity found")
	return rec, nil
}
