// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

func TestFindExactMatchTakesPrecedence(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		exact := seed(t, c, named("john smith", 0.5))
		// A richer, more confident record that fuzzy matching would prefer.
		seed(t, c, named("john a smith", 1.0))

		rec, err := c.Find(ctx, "Smith, John", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, exact.ID, rec.ID)
		assert.Equal(t, 2, rec.LookupCount)
		assert.Equal(t, 2, get(t, c, exact.ID).LookupCount)
	})
}

func TestFindExactIgnoresFuzzyFlag(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		seed(t, c, named("j a smith", 0.9))

		rec, err := c.Find(context.Background(), "Smith JA", false)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, "j a smith", rec.NormalizedName)
	})
}

func TestFindSimilarity(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		want := seed(t, c, named("russell a poldrack", 1.0))

		rec, err := c.Find(ctx, "Poldrack RA", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, want.ID, rec.ID)

		rec, err = c.Find(ctx, "R. Poldrack", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, want.ID, rec.ID)
		assert.Equal(t, 3, get(t, c, want.ID).LookupCount)
	})
}

func TestFindSimilarityPicksBestScore(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		// Both clear the threshold; the first candidate scanned scores lower.
		seed(t, c, named("j smith", 1.0))
		best := seed(t, c, named("john quincy smith", 0.8))

		rec, err := c.Find(context.Background(), "John Q. Smith", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, best.ID, rec.ID)
	})
}

func TestFindFuzzyDisabled(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		seed(t, c, named("russell a poldrack", 1.0))

		rec, err := c.Find(context.Background(), "Poldrack RA", false)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestFindSurnameMustMatch(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		seed(t, c, named("anna smithson", 1.0))

		rec, err := c.Find(context.Background(), "A Smith", true)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestFindGatesOnStoredSurname(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		compound := seed(t, c, &types.IdentityRecord{
			NormalizedName:  "anna smith jones",
			Surname:         "smith jones",
			ConfidenceScore: 1.0,
		})

		rec, err := c.Find(ctx, "Jones, Anna", true)
		require.NoError(t, err)
		assert.Nil(t, rec, "a different surname must not match")

		rec, err = c.Find(ctx, "Smith-Jones, A.", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, compound.ID, rec.ID)
	})
}

func TestCompoundSurnamesResolveSeparately(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		upsert := func(name string) int64 {
			rec, err := c.Upsert(ctx, types.Sighting{Name: name})
			require.NoError(t, err)
			return rec.ID
		}

		compound := upsert("Smith-Jones, Anna")
		assert.Equal(t, compound, upsert("Smith-Jones, A."))

		simple := upsert("Jones, Anna")
		assert.NotEqual(t, compound, simple)
		assert.Equal(t, simple, upsert("Jones, A."))
		assert.Equal(t, 2, count(t, c))
		assert.Equal(t, "smith jones", get(t, c, compound).Surname)
	})
}

func TestFindEditDistanceFallback(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		typo := seed(t, c, named("jonh smith", 0.8))

		rec, err := c.Find(context.Background(), "John Smith", true)
		require.NoError(t, err)
		require.NotNil(t, rec)
		assert.Equal(t, typo.ID, rec.ID)
	})
}

func TestFindEditDistanceShortNameGuard(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		seed(t, c, named("a lu", 1.0))

		rec, err := c.Find(context.Background(), "Bo Lu", true)
		require.NoError(t, err)
		assert.Nil(t, rec)
	})
}

func TestFindMiss(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		seed(t, c, named("jane doe", 1.0))

		for _, name := range []string{"", "  ", "Totally Different", "Doe, Xavier"} {
			rec, err := c.Find(ctx, name, true)
			require.NoError(t, err, name)
			assert.Nil(t, rec, name)
		}
	})
}

func TestFindRecordsMetrics(t *testing.T) {
	ctx := context.Background()
	m := newMetrics()
	c := newCache(cachestore.NewMemoryStore(), m)
	seed(t, c, named("russell a poldrack", 1.0))
	seed(t, c, named("jonh smith", 1.0))

	for _, name := range []string{"Russell A. Poldrack", "Poldrack RA", "John Smith", "Nobody Here"} {
		_, err := c.Find(ctx, name, true)
		require.NoError(t, err)
	}

	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMatches.WithLabelValues(observability.PhaseExact)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMatches.WithLabelValues(observability.PhaseFuzzy)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMatches.WithLabelValues(observability.PhaseEdit)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMisses))
}

func TestFindFoldAccents(t *testing.T) {
	cfg := types.DefaultCacheConfig()
	cfg.FoldAccents = true
	c := New(cachestore.NewMemoryStore(), Options{Config: cfg})
	seed(t, c, named("jose muller", 1.0))

	rec, err := c.Find(context.Background(), "José Müller", false)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "jose muller", rec.NormalizedName)
}

// failingStore fails exact-name lookups.
type failingStore struct {
	cachestore.Store
}

var errStoreDown = errors.New("store unavailable")

func (failingStore) FindByNormalizedName(context.Context, string) ([]*types.IdentityRecord, error) {
	return nil, errStoreDown
}

func TestFindPropagatesStoreErrors(t *testing.T) {
	c := newCache(failingStore{cachestore.NewMemoryStore()}, nil)

	rec, err := c.Find(context.Background(), "Jane Doe", true)
	assert.Nil(t, rec)
	assert.ErrorIs(t, err, errStoreDown)
}
