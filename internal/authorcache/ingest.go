// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.yaml.in/yaml/v3"

	"github.com/pdiddy/cvdb/internal/cachestore"
	"github.com/pdiddy/cvdb/internal/observability"
	"github.com/pdiddy/cvdb/pkg/types"
)

// PublicationAuthorConfidence is the confidence given to publication authors
// that do not state one.
const PublicationAuthorConfidence = 0.8

// Sighting file formats.
const (
	FormatYAML = "yaml"
	FormatJSON = "json"
)

// sightingFile is the mapping form of a sightings file.
type sightingFile struct {
	Sightings    []types.Sighting    `json:"sightings" yaml:"sightings"`
	Publications []types.Publication `json:"publications" yaml:"publications"`
}

// entry is one element of the list form: a sighting, or a publication when
// it carries an authors list. A publication's source is read into the
// embedded Sighting.
type entry struct {
	types.Sighting `yaml:",inline"`
	Title          string           `json:"title" yaml:"title"`
	Authors        []types.Sighting `json:"authors" yaml:"authors"`
}

// LoadSightings reads author sightings from a .yaml, .yml, or .json file.
// The file holds either a list of sightings and publications, or a mapping
// with sightings and publications keys. Publication authors inherit the
// publication's source and default to PublicationAuthorConfidence.
func LoadSightings(path string) ([]types.Sighting, error) {
	var format string
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("%s: unsupported file extension %q: use .yaml, .yml, or .json", path, ext)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	sightings, err := ParseSightings(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return sightings, nil
}

// ParseSightings decodes sightings from YAML or JSON data.
func ParseSightings(data []byte, format string) ([]types.Sighting, error) {
	unmarshal := yaml.Unmarshal
	if format == FormatJSON {
		unmarshal = json.Unmarshal
	}

	list, err := isList(data, format)
	if err != nil {
		return nil, fmt.Errorf("parsing sightings: %w", err)
	}

	var out []types.Sighting
	if list {
		var entries []entry
		if err := unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("parsing sightings: %w", err)
		}
		for _, e := range entries {
			if e.Authors == nil {
				out = append(out, e.Sighting)
				continue
			}
			out = append(out, publicationAuthors(string(e.Source), e.Authors)...)
		}
		return out, nil
	}

	var f sightingFile
	if err := unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing sightings: %w", err)
	}
	out = append(out, f.Sightings...)
	for _, p := range f.Publications {
		out = append(out, publicationAuthors(p.Source, p.Authors)...)
	}
	return out, nil
}

func isList(data []byte, format string) (bool, error) {
	if format == FormatJSON {
		t := bytes.TrimSpace(data)
		return len(t) > 0 && t[0] == '[', nil
	}
	var n yaml.Node
	if err := yaml.Unmarshal(data, &n); err != nil {
		return false, err
	}
	return len(n.Content) > 0 && n.Content[0].Kind == yaml.SequenceNode, nil
}

func publicationAuthors(source string, authors []types.Sighting) []types.Sighting {
	out := make([]types.Sighting, 0, len(authors))
	for _, a := range authors {
		if a.Source == "" {
			a.Source = types.Source(source)
		}
		if a.Confidence == nil {
			conf := PublicationAuthorConfidence
			a.Confidence = &conf
		}
		out = append(out, a)
	}
	return out
}

// IngestSummary holds counts from a sighting ingestion run.
type IngestSummary struct {
	Created   int `json:"created" yaml:"created"`
	Updated   int `json:"updated" yaml:"updated"`
	Unchanged int `json:"unchanged" yaml:"unchanged"`
	Skipped   int `json:"skipped" yaml:"skipped"`
	Failed    int `json:"failed" yaml:"failed"`
}

// Total returns the number of sightings processed.
func (s IngestSummary) Total() int {
	return s.Created + s.Updated + s.Unchanged + s.Skipped + s.Failed
}

// IngestSightings upserts each sighting in order and writes one progress
// line per sighting plus a summary to w. A failing sighting is counted and
// reported; the rest still run. Only context cancellation stops the run.
func (c *Cache) IngestSightings(ctx context.Context, sightings []types.Sighting, w io.Writer) (IngestSummary, error) {
	var summary IngestSummary

	for i, s := range sightings {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		label := sightingLabel(i, s)

		rec, outcome, err := c.upsert(ctx, s)
		switch {
		case err != nil:
			fmt.Fprintf(w, "failed  %s: %v\n", label, err)
			c.log.Warn().Err(err).Str("sighting", label).Msg("sighting failed")
			summary.Failed++
		case outcome == observability.OutcomeSkipped:
			fmt.Fprintf(w, "skipped %s: no name or identifier\n", label)
			summary.Skipped++
		case outcome == observability.OutcomeCreated:
			fmt.Fprintf(w, "created %s -> %d %s\n", label, rec.ID, rec.NormalizedName)
			summary.Created++
		case outcome == observability.OutcomeUpdated:
			fmt.Fprintf(w, "updated %s -> %d %s\n", label, rec.ID, rec.NormalizedName)
			summary.Updated++
		default:
			fmt.Fprintf(w, "matched %s -> %d %s\n", label, rec.ID, rec.NormalizedName)
			summary.Unchanged++
		}
	}

	fmt.Fprintf(w, "\ncreated: %d, updated: %d, unchanged: %d, skipped: %d, failed: %d\n",
		summary.Created, summary.Updated, summary.Unchanged, summary.Skipped, summary.Failed)
	return summary, nil
}

func sightingLabel(i int, s types.Sighting) string {
	switch {
	case s.Name != "":
		return fmt.Sprintf("%q", s.Name)
	case s.ScopusID != "":
		return "scopus:" + s.ScopusID
	case s.ORCID != "":
		return "orcid:" + s.ORCID
	default:
		return fmt.Sprintf("#%d", i+1)
	}
}

// Snapshot returns a Cache over an in-memory copy of the current store.
// Writes through the snapshot never reach the original store, which is how
// dry runs of ingestion are executed.
func (c *Cache) Snapshot(ctx context.Context) (*Cache, error) {
	records, err := c.store.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading identity cache: %w", err)
	}
	mem := cachestore.NewMemoryStore()
	mem.UniqueIdentifiers = c.store.EnforcesUniqueIdentifiers()
	mem.Seed(records...)

	return &Cache{
		store: mem,
		cfg:   c.cfg,
		log:   c.log.With().Bool("dry_run", true).Logger(),
		now:   c.now,
	}, nil
}
