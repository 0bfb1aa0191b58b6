// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// --- test helpers ---

var fixedNow = time.Date(2026, 3, 14, 9, 30, 0, 0, time.UTC)

type storeFactory struct {
	name string
	open func(t *testing.T, unique bool) cachestore.Store
}

func factories() []storeFactory {
	return []storeFactory{
		{"memory", func(t *testing.T, unique bool) cachestore.Store {
			m := cachestore.NewMemoryStore()
			m.UniqueIdentifiers = unique
			return m
		}},
		{"sqlite", func(t *testing.T, unique bool) cachestore.Store {
			s, err := cachestore.Open(types.StoreConfig{
				Path:                      filepath.Join(t.TempDir(), "cvdb.db"),
				AllowDuplicateIdentifiers: !unique,
			})
			require.NoError(t, err)
			t.Cleanup(func() { s.Close() })
			return s
		}},
	}
}

// forEachStore runs fn against a fresh cache over each store implementation.
// unique enables the identifier uniqueness constraints.
func forEachStore(t *testing.T, unique bool, fn func(t *testing.T, c *Cache)) {
	for _, f := range factories() {
		t.Run(f.name, func(t *testing.T) {
			fn(t, newCache(f.open(t, unique), nil))
		})
	}
}

func newCache(s cachestore.Store, m *observability.Metrics) *Cache {
	return New(s, Options{
		Config:  types.DefaultCacheConfig(),
		Metrics: m,
		Now:     func() time.Time { return fixedNow },
	})
}

func newMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}

// seed inserts a record directly into the store, bypassing upsert.
func seed(t *testing.T, c *Cache, rec *types.IdentityRecord) *types.IdentityRecord {
	t.Helper()
	if rec.NameVariations == nil {
		rec.NameVariations = []string{rec.NormalizedName}
	}
	if rec.Source == "" {
		rec.Source = types.SourceManual
	}
	if rec.LookupCount == 0 {
		rec.LookupCount = 1
	}
	require.NoError(t, c.Store().Insert(context.Background(), rec))
	return rec
}

func named(name string, confidence float64) *types.IdentityRecord {
	return &types.IdentityRecord{NormalizedName: name, ConfidenceScore: confidence}
}

func get(t *testing.T, c *Cache, id int64) *types.IdentityRecord {
	t.Helper()
	rec, err := c.Store().Get(context.Background(), id)
	require.NoError(t, err)
	return rec
}

func count(t *testing.T, c *Cache) int {
	t.Helper()
	n, err := c.Store().Count(context.Background())
	require.NoError(t, err)
	return n
}

func conf(v float64) *float64 { return &v }
