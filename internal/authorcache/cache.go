// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package authorcache resolves author sightings to cached identity records.
// It runs the three-phase match cascade, the find-or-create upsert, and the
// batch consolidation that folds duplicate records together.
package authorcache

import (
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/names"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// ErrIdentifierConflict is returned when an operation would replace a
// populated Scopus ID or ORCID with a different value.
var ErrIdentifierConflict = errors.New("identifier conflicts with the stored value")

// Options configures a Cache. Zero fields take defaults.
type Options struct {
	Config types.CacheConfig

	// Logger receives debug traces of cascade phases and info lines for
	// writes. Nil disables logging.
	Logger *zerolog.Logger

	// Metrics may be nil.
	Metrics *observability.Metrics

	// Now stamps verification times. Defaults to time.Now.
	Now func() time.Time
}

// Cache is the author identity cache engine over a record store.
type Cache struct {
	store   cachestore.Store
	cfg     types.CacheConfig
	log     zerolog.Logger
	metrics *observability.Metrics
	now     func() time.Time
}

// New returns a Cache over store.
func New(store cachestore.Store, opts Options) *Cache {
	c := &Cache{
		store:   store,
		cfg:     opts.Config.WithDefaults(),
		log:     zerolog.Nop(),
		metrics: opts.Metrics,
		now:     opts.Now,
	}
	if opts.Logger != nil {
		c.log = opts.Logger.With().Str("component", "authorcache").Logger()
	}
	if c.now == nil {
		c.now = time.Now
	}
	return c
}

// Store returns the underlying record store.
func (c *Cache) Store() cachestore.Store {
	return c.store
}

// Config returns the effective engine settings.
func (c *Cache) Config() types.CacheConfig {
	return c.cfg
}

// extract decomposes raw, folding accents first when configured.
func (c *Cache) extract(raw string) names.Components {
	if c.cfg.FoldAccents {
		raw = names.FoldAccents(raw)
	}
	return names.Extract(raw)
}

// recordComponents decomposes a stored record's name, anchored on its stored
// surname when it has one.
func (c *Cache) recordComponents(rec *types.IdentityRecord) names.Components {
	name, surname := rec.NormalizedName, rec.Surname
	if c.cfg.FoldAccents {
		name, surname = names.FoldAccents(name), names.FoldAccents(surname)
	}
	return names.ExtractWithSurname(name, surname)
}

// normalize normalizes s, folding accents first when configured.
func (c *Cache) normalize(s string) string {
	if c.cfg.FoldAccents {
		s = names.FoldAccents(s)
	}
	return names.Normalize(s)
}
