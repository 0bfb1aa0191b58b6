// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package cachestore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cvdb/pkg/types"
)

// Export formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// Export writes every record in s to w as YAML or JSON.
func Export(ctx context.Context, s Store, w io.Writer, format string) error {
	records, err := s.All(ctx)
	if err != nil {
		return err
	}
	if records == nil {
		records = []*types.IdentityRecord{}
	}

	switch format {
	case FormatYAML, "":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("marshaling YAML: %w", err)
		}
		return enc.Close()
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("marshaling JSON: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported format %q: use yaml or json", format)
	}
}

// ExportFile writes every record in s to path.
func ExportFile(ctx context.Context, s Store, path, format string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	if err := Export(ctx, s, f, format); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Stats summarizes the cache contents.
type Stats struct {
	Total       int                  `json:"total" yaml:"total"`
	WithScopus  int                  `json:"with_scopus_id" yaml:"with_scopus_id"`
	WithORCID   int                  `json:"with_orcid_id" yaml:"with_orcid_id"`
	WithBoth    int                  `json:"with_both" yaml:"with_both"`
	Verified    int                  `json:"verified" yaml:"verified"`
	BySource    map[types.Source]int `json:"by_source" yaml:"by_source"`
	MeanLookups float64              `json:"mean_lookups" yaml:"mean_lookups"`
}

// Sources returns the sources present in BySource, sorted.
func (st Stats) Sources() []types.Source {
	out := make([]types.Source, 0, len(st.BySource))
	for src := range st.BySource {
		out = append(out, src)
	}
	slices.SortFunc(out, func(a, b types.Source) int { return cmp.Compare(a, b) })
	return out
}

// ComputeStats scans s and returns identifier coverage and source counts.
func ComputeStats(ctx context.Context, s Store) (Stats, error) {
	records, err := s.All(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{Total: len(records), BySource: make(map[types.Source]int)}
	lookups := 0
	for _, r := range records {
		st.BySource[r.Source]++
		lookups += r.LookupCount
		if r.ScopusID != "" {
			st.WithScopus++
		}
		if r.ORCID != "" {
			st.WithORCID++
		}
		if r.ScopusID != "" && r.ORCID != "" {
			st.WithBoth++
		}
		if r.LastVerified != nil {
			st.Verified++
		}
	}
	if st.Total > 0 {
		st.MeanLookups = float64(lookups) / float64(st.Total)
	}
	return st, nil
}
