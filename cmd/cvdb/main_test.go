// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/pkg/types"
)

// execute runs the CLI with args and returns what it wrote to stdout. Flag
// values are reset afterwards so runs do not leak into each other.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	t.Cleanup(func() { resetFlags(rootCmd) })

	err := rootCmd.ExecuteContext(context.Background())
	resetFlags(rootCmd)
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			sv.Replace(nil)
		} else {
			f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func tempDB(t *testing.T) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "cvdb.db")
}

func TestVersionCommand(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cvdb dev\n", out)
}

func TestComponentsCommand(t *testing.T) {
	out, err := execute(t, "author", "components", "--json", "Smith,", "John", "A.")
	require.NoError(t, err)

	var got struct {
		Surname    string   `json:"surname"`
		GivenNames []string `json:"given_names"`
		Initials   []string `json:"initials"`
		Canonical  string   `json:"canonical"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "smith", got.Surname)
	assert.Equal(t, []string{"john"}, got.GivenNames)
	assert.Equal(t, []string{"j", "a"}, got.Initials)
	assert.NotEmpty(t, got.Canonical)
}

func TestCacheThenFind(t *testing.T) {
	db := tempDB(t)

	out, err := execute(t, "--db", db, "author", "cache", "--json",
		"--name", "Russell A. Poldrack", "--scopus-id", "7004366178",
		"--affiliation", "Stanford University", "--source", "scopus")
	require.NoError(t, err)

	var created types.IdentityRecord
	require.NoError(t, json.Unmarshal([]byte(out), &created))
	assert.Equal(t, "7004366178", created.ScopusID)
	assert.Equal(t, []string{"Stanford University"}, created.Affiliations)
	assert.Equal(t, types.SourceScopus, created.Source)

	out, err = execute(t, "--db", db, "author", "find", "--json", "Russell", "A.", "Poldrack")
	require.NoError(t, err)
	var found types.IdentityRecord
	require.NoError(t, json.Unmarshal([]byte(out), &found))
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, 2, found.LookupCount)

	out, err = execute(t, "--db", db, "author", "find", "Nobody", "Here")
	require.NoError(t, err)
	assert.Equal(t, "No cached identity found.\n", out)
}

func TestCacheRequiresInput(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "author", "cache", "--given-name", "Jane")
	assert.ErrorContains(t, err, "nothing to cache")
}

func TestIngestDryRunWritesNothing(t *testing.T) {
	db := tempDB(t)
	file := filepath.Join(t.TempDir(), "sightings.json")
	require.NoError(t, writeJSON(file, []types.Sighting{{Name: "Jane Doe"}, {Name: "John Smith"}}))

	out, err := execute(t, "--db", db, "author", "ingest", "--dry-run", file)
	require.NoError(t, err)
	assert.Contains(t, out, "dry run")
	assert.Contains(t, out, "created: 2, updated: 0, unchanged: 0, skipped: 0, failed: 0")

	out, err = execute(t, "--db", db, "author", "stats", "--json")
	require.NoError(t, err)
	var st cachestore.Stats
	require.NoError(t, json.Unmarshal([]byte(out), &st))
	assert.Equal(t, 0, st.Total)

	_, err = execute(t, "--db", db, "author", "ingest", file)
	require.NoError(t, err)
	out, err = execute(t, "--db", db, "author", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "jane doe")
	assert.Contains(t, out, "2 identities")
}

func TestConsolidateCommand(t *testing.T) {
	db := tempDB(t)
	store, err := cachestore.Open(types.StoreConfig{Path: db})
	require.NoError(t, err)
	for _, name := range []string{"john a smith", "j a smith"} {
		require.NoError(t, store.Insert(context.Background(), &types.IdentityRecord{
			NormalizedName:  name,
			NameVariations:  []string{name},
			Source:          types.SourceManual,
			ConfidenceScore: 0.8,
			LookupCount:     1,
		}))
	}
	require.NoError(t, store.Close())

	out, err := execute(t, "--db", db, "author", "consolidate", "--json")
	require.NoError(t, err)
	var report struct {
		GroupsConsolidated int `json:"groups_consolidated"`
		EntriesRemaining   int `json:"entries_remaining"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.GroupsConsolidated)
	assert.Equal(t, 1, report.EntriesRemaining)
}

func TestVerifyRequiresMethod(t *testing.T) {
	_, err := execute(t, "--db", tempDB(t), "author", "verify", "1")
	assert.ErrorContains(t, err, "method")
}

func writeJSON(path string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
