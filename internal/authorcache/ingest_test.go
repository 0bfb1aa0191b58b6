// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/pkg/types"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadSightingsYAMLList(t *testing.T) {
	path := writeFile(t, "sightings.yaml", `
- name: Poldrack, Russell A.
  affiliations: [Stanford University]
- name: Poldrack RA
  scopus_id: "7004366178"
  source: scopus
  confidence_score: 0.95
- title: Cognitive control
  source: pubmed
  authors:
    - name: R. Poldrack
    - name: Smith JA
      source: crossref
      confidence_score: 1.0
`)

	got, err := LoadSightings(path)
	require.NoError(t, err)
	require.Len(t, got, 4)

	assert.Equal(t, "Poldrack, Russell A.", got[0].Name)
	assert.Equal(t, []string{"Stanford University"}, got[0].Affiliations)
	assert.Nil(t, got[0].Confidence)

	assert.Equal(t, "7004366178", got[1].ScopusID)
	assert.Equal(t, types.SourceScopus, got[1].Source)
	assert.Equal(t, 0.95, got[1].ConfidenceOrDefault())

	assert.Equal(t, "R. Poldrack", got[2].Name)
	assert.Equal(t, types.Source("pubmed"), got[2].Source)
	assert.Equal(t, PublicationAuthorConfidence, got[2].ConfidenceOrDefault())

	assert.Equal(t, types.SourceCrossRef, got[3].Source)
	assert.Equal(t, 1.0, got[3].ConfidenceOrDefault())
}

func TestLoadSightingsYAMLMapping(t *testing.T) {
	path := writeFile(t, "sightings.yml", `
sightings:
  - name: Jane Doe
    orcid_id: 0000-0000-0000-0001
publications:
  - title: A paper
    source: scopus
    authors:
      - name: J Doe
      - scopus_id: "123"
`)

	got, err := LoadSightings(path)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "0000-0000-0000-0001", got[0].ORCID)
	assert.Equal(t, types.SourceScopus, got[1].Source)
	assert.Equal(t, "123", got[2].ScopusID)
}

func TestLoadSightingsJSON(t *testing.T) {
	path := writeFile(t, "sightings.json", `[
	{"name": "Jane Doe", "orcid_id": "0000-0000-0000-0001", "confidence_score": 0.5},
	{"title": "Paper", "source": "orcid", "authors": [{"name": "J Doe"}]}
]`)

	got, err := LoadSightings(path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 0.5, got[0].ConfidenceOrDefault())
	assert.Equal(t, "J Doe", got[1].Name)
	assert.Equal(t, types.SourceORCID, got[1].Source)

	path = writeFile(t, "mapping.json", `{"sightings": [{"name": "A Lee"}]}`)
	got, err = LoadSightings(path)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "A Lee", got[0].Name)
}

func TestLoadSightingsErrors(t *testing.T) {
	_, err := LoadSightings(writeFile(t, "sightings.csv", "name\nJane Doe\n"))
	assert.ErrorContains(t, err, "unsupported file extension")

	_, err = LoadSightings(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadSightings(writeFile(t, "bad.json", `[{"name": `))
	assert.Error(t, err)

	_, err = LoadSightings(writeFile(t, "bad.yaml", "- name: [unclosed"))
	assert.Error(t, err)
}

func TestIngestSightings(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		sightings := []types.Sighting{
			{Name: "Poldrack, Russell A."},
			{Name: "Poldrack RA", ScopusID: "7004366178"},
			{Name: "R. Poldrack"},
			{Name: "R. Poldrack"},
			{},
			{Name: "J Smith", ORCID: "0000-0000-0000-0001"},
		}

		var buf bytes.Buffer
		summary, err := c.IngestSightings(context.Background(), sightings, &buf)
		require.NoError(t, err)

		assert.Equal(t, IngestSummary{Created: 2, Updated: 2, Unchanged: 1, Skipped: 1}, summary)
		assert.Equal(t, len(sightings), summary.Total())
		assert.Equal(t, 2, count(t, c))

		out := buf.String()
		assert.Contains(t, out, `created "Poldrack, Russell A."`)
		assert.Contains(t, out, `updated "Poldrack RA"`)
		assert.Contains(t, out, `matched "R. Poldrack"`)
		assert.Contains(t, out, "skipped #5")
		assert.Contains(t, out, "created: 2, updated: 2, unchanged: 1, skipped: 1, failed: 0")
	})
}

func TestIngestSightingsIsolatesFailures(t *testing.T) {
	c := newCache(failingStore{cachestore.NewMemoryStore()}, nil)

	var buf bytes.Buffer
	summary, err := c.IngestSightings(context.Background(), []types.Sighting{
		{Name: "Jane Doe"},
		{ScopusID: "1"},
	}, &buf)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Created)
	assert.Contains(t, buf.String(), `failed  "Jane Doe"`)
}

func TestIngestSightingsCancelled(t *testing.T) {
	c := newCache(cachestore.NewMemoryStore(), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.IngestSightings(ctx, []types.Sighting{{Name: "Jane Doe"}}, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, count(t, c))
}

func TestSnapshotLeavesStoreUntouched(t *testing.T) {
	forEachStore(t, true, func(t *testing.T, c *Cache) {
		ctx := context.Background()
		rec := seed(t, c, named("russell a poldrack", 1.0))

		dry, err := c.Snapshot(ctx)
		require.NoError(t, err)

		var buf bytes.Buffer
		summary, err := dry.IngestSightings(ctx, []types.Sighting{
			{Name: "Poldrack RA", ScopusID: "7004366178"},
			{Name: "Jane Doe"},
		}, &buf)
		require.NoError(t, err)
		assert.Equal(t, 1, summary.Updated)
		assert.Equal(t, 1, summary.Created)

		assert.Equal(t, 1, count(t, c))
		stored := get(t, c, rec.ID)
		assert.Empty(t, stored.ScopusID)
		assert.Equal(t, 1, stored.LookupCount)

		// New records in the snapshot do not reuse existing IDs.
		all, err := dry.Store().All(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.NotEqual(t, all[0].ID, all[1].ID)
	})
}

func TestSnapshotKeepsIdentifierUniqueness(t *testing.T) {
	for _, unique := range []bool{true, false} {
		forEachStore(t, unique, func(t *testing.T, c *Cache) {
			ctx := context.Background()
			seed(t, c, &types.IdentityRecord{NormalizedName: "anna berg", ScopusID: "S1", ConfidenceScore: 0.9})

			dry, err := c.Snapshot(ctx)
			require.NoError(t, err)
			assert.Equal(t, unique, dry.Store().EnforcesUniqueIdentifiers())

			err = dry.Store().Insert(ctx, &types.IdentityRecord{NormalizedName: "zed quux", ScopusID: "S1", Source: types.SourceManual})
			if unique {
				assert.ErrorIs(t, err, cachestore.ErrConflict)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
