// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package authorcache

import (
	"cmp"
	"context"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/pdiddy/cvdb/internal/names"
	"github.com/pdiddy/cvdb/pkg/types"
)

// Duplicate group kinds.
const (
	KindScopus = "scopus"
	KindORCID  = "orcid"
	KindName   = "name"
)

// ConsolidateOptions controls a consolidation run.
type ConsolidateOptions struct {
	// DryRun reports the groups that would merge without touching the store.
	DryRun bool

	// MinConfidence is the name similarity every pair in a name group must
	// reach. Zero uses the configured similarity threshold.
	MinConfidence float64
}

// GroupReport describes one duplicate group and the outcome of its merge.
type GroupReport struct {
	Kind      string `json:"kind" yaml:"kind"`
	PrimaryID int64  `json:"primary_id" yaml:"primary_id"`

	// Canonical is the normalized name of the surviving record.
	Canonical string `json:"canonical" yaml:"canonical"`

	// Folded lists the normalized names of the records merged away.
	Folded     []string `json:"folded" yaml:"folded"`
	RemovedIDs []int64  `json:"removed_ids" yaml:"removed_ids"`
	ScopusID   string   `json:"scopus_id,omitempty" yaml:"scopus_id,omitempty"`
	ORCID      string   `json:"orcid_id,omitempty" yaml:"orcid_id,omitempty"`

	Err   error  `json:"-" yaml:"-"`
	Error string `json:"error,omitempty" yaml:"error,omitempty"`
}

// ConsolidationReport summarizes a consolidation run.
type ConsolidationReport struct {
	RunID              string        `json:"run_id" yaml:"run_id"`
	DryRun             bool          `json:"dry_run" yaml:"dry_run"`
	Passes             int           `json:"passes" yaml:"passes"`
	GroupsConsolidated int           `json:"groups_consolidated" yaml:"groups_consolidated"`
	EntriesMerged      int           `json:"entries_merged" yaml:"entries_merged"`
	EntriesRemaining   int           `json:"entries_remaining" yaml:"entries_remaining"`
	Failed             int           `json:"failed" yaml:"failed"`
	Groups             []GroupReport `json:"groups" yaml:"groups"`
}

// group is a set of records believed to denote one person. members[0] is
// the primary once sorted by primaryOrder.
type group struct {
	kind    string
	members []*types.IdentityRecord
}

// Consolidate sweeps the cache for duplicate records and merges each group
// into its primary record. Groups come from shared Scopus IDs, shared ORCIDs,
// and name similarity within a surname; records with conflicting identifiers
// never share a group. Each group merges atomically; a failed group is
// reported and the sweep continues.
//
// A live run repeats the sweep until nothing more merges, so running it again
// without new data merges nothing. A dry run sweeps once.
func (c *Cache) Consolidate(ctx context.Context, opts ConsolidateOptions) (*ConsolidationReport, error) {
	minConf := opts.MinConfidence
	if minConf <= 0 {
		minConf = c.cfg.SimilarityThreshold
	}

	report := &ConsolidationReport{RunID: uuid.NewString(), DryRun: opts.DryRun, Groups: []GroupReport{}}
	log := c.log.With().Str("run_id", report.RunID).Bool("dry_run", opts.DryRun).Logger()
	failed := make(map[int64]bool)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		records, err := c.store.All(ctx)
		if err != nil {
			return nil, fmt.Errorf("reading identity cache: %w", err)
		}
		report.Passes++

		merged := 0
		for _, g := range c.findGroups(records, minConf) {
			if failed[g.members[0].ID] {
				continue
			}
			gr := c.mergeGroup(ctx, g, opts.DryRun, log)
			report.Groups = append(report.Groups, gr)
			if gr.Err != nil {
				failed[gr.PrimaryID] = true
				report.Failed++
				continue
			}
			report.GroupsConsolidated++
			report.EntriesMerged += len(gr.RemovedIDs)
			merged++
		}
		if opts.DryRun || merged == 0 {
			break
		}
	}

	n, err := c.store.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("counting identities: %w", err)
	}
	report.EntriesRemaining = n
	if opts.DryRun {
		report.EntriesRemaining = n - report.EntriesMerged
	}

	log.Info().
		Int("groups", report.GroupsConsolidated).
		Int("merged", report.EntriesMerged).
		Int("remaining", report.EntriesRemaining).
		Int("failed", report.Failed).
		Int("passes", report.Passes).
		Msg("consolidation finished")
	return report, nil
}

// findGroups partitions a snapshot into duplicate groups of two or more.
// Identifier groups are built first; name groups only see what is left.
func (c *Cache) findGroups(records []*types.IdentityRecord, minConf float64) []group {
	grouped := make(map[int64]bool)
	var out []group

	add := func(kind string, members []*types.IdentityRecord) {
		if len(members) < 2 {
			return
		}
		for _, m := range members {
			grouped[m.ID] = true
		}
		slices.SortStableFunc(members, primaryOrder)
		out = append(out, group{kind: kind, members: members})
	}

	for _, anchor := range records {
		if !grouped[anchor.ID] && anchor.ScopusID != "" {
			add(KindScopus, identifierGroup(anchor, records, grouped))
		}
	}
	for _, anchor := range records {
		if !grouped[anchor.ID] && anchor.ORCID != "" {
			add(KindORCID, identifierGroup(anchor, records, grouped))
		}
	}

	var surnames []string
	buckets := make(map[string][]*types.IdentityRecord)
	comps := make(map[int64]names.Components)
	for _, r := range records {
		if grouped[r.ID] {
			continue
		}
		comp := c.recordComponents(r)
		if comp.IsEmpty() {
			continue
		}
		comps[r.ID] = comp
		if _, ok := buckets[comp.Surname]; !ok {
			surnames = append(surnames, comp.Surname)
		}
		buckets[comp.Surname] = append(buckets[comp.Surname], r)
	}

	for _, surname := range surnames {
		bucket := buckets[surname]
		for i, anchor := range bucket {
			if grouped[anchor.ID] {
				continue
			}
			members := []*types.IdentityRecord{anchor}
			ids := idsOf(anchor)
			for _, r := range bucket[i+1:] {
				if grouped[r.ID] || ids.conflicts(r) {
					continue
				}
				if !similarToAll(comps[r.ID], members, comps, minConf) {
					continue
				}
				members = append(members, r)
				ids.absorb(r)
			}
			add(KindName, members)
		}
	}
	return out
}

// identifierGroup grows a group from anchor over records that share a Scopus
// ID or ORCID with it, admitting nothing that conflicts with the identifiers
// gathered so far.
func identifierGroup(anchor *types.IdentityRecord, records []*types.IdentityRecord, grouped map[int64]bool) []*types.IdentityRecord {
	members := []*types.IdentityRecord{anchor}
	in := map[int64]bool{anchor.ID: true}
	ids := idsOf(anchor)

	for grew := true; grew; {
		grew = false
		for _, r := range records {
			if grouped[r.ID] || in[r.ID] || !ids.shares(r) || ids.conflicts(r) {
				continue
			}
			members = append(members, r)
			in[r.ID] = true
			ids.absorb(r)
			grew = true
		}
	}
	return members
}

func similarToAll(comp names.Components, members []*types.IdentityRecord, comps map[int64]names.Components, minConf float64) bool {
	for _, m := range members {
		if names.SymmetricSimilarity(comp, comps[m.ID]) < minConf {
			return false
		}
	}
	return true
}

// idSet is the union of the strong identifiers held by a group.
type idSet struct {
	scopus, orcid string
}

func idsOf(r *types.IdentityRecord) idSet {
	return idSet{scopus: r.ScopusID, orcid: r.ORCID}
}

func (s idSet) shares(r *types.IdentityRecord) bool {
	return (s.scopus != "" && s.scopus == r.ScopusID) || (s.orcid != "" && s.orcid == r.ORCID)
}

func (s idSet) conflicts(r *types.IdentityRecord) bool {
	return r.ConflictsWith(&types.IdentityRecord{ScopusID: s.scopus, ORCID: s.orcid})
}

func (s *idSet) absorb(r *types.IdentityRecord) {
	if s.scopus == "" {
		s.scopus = r.ScopusID
	}
	if s.orcid == "" {
		s.orcid = r.ORCID
	}
}

// primaryOrder sorts the record that should survive a merge first.
func primaryOrder(a, b *types.IdentityRecord) int {
	if a.HasIdentifier() != b.HasIdentifier() {
		if a.HasIdentifier() {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(b.ConfidenceScore, a.ConfidenceScore); c != 0 {
		return c
	}
	if c := cmp.Compare(b.LookupCount, a.LookupCount); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.NameVariations), len(a.NameVariations)); c != 0 {
		return c
	}
	if c := cmp.Compare(len(b.NormalizedName), len(a.NormalizedName)); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// merged folds the rest of g into a copy of its primary.
func (c *Cache) merged(g group) *types.IdentityRecord {
	primary := g.members[0]
	out := primary.Clone()
	top := primary.ConfidenceScore

	for _, m := range g.members[1:] {
		for _, v := range m.NameVariations {
			out.AddVariation(v)
		}
		out.AddAffiliations(m.Affiliations...)
		out.LookupCount += m.LookupCount
		if out.ScopusID == "" {
			out.ScopusID = m.ScopusID
		}
		if out.ORCID == "" {
			out.ORCID = m.ORCID
		}
		if out.GivenName == "" {
			out.GivenName = m.GivenName
		}
		if out.Surname == "" {
			out.Surname = m.Surname
		}
		if out.LastVerified == nil && m.LastVerified != nil {
			t := *m.LastVerified
			out.LastVerified = &t
			out.VerificationMethod = m.VerificationMethod
		}
		top = max(top, m.ConfidenceScore)
	}

	out.ConfidenceScore = max(min(1, primary.ConfidenceScore+c.cfg.ConfidenceBoost), top)
	return out
}

func (c *Cache) mergeGroup(ctx context.Context, g group, dryRun bool, log zerolog.Logger) GroupReport {
	out := c.merged(g)
	gr := GroupReport{
		Kind:       g.kind,
		PrimaryID:  out.ID,
		Canonical:  out.NormalizedName,
		Folded:     make([]string, 0, len(g.members)-1),
		RemovedIDs: make([]int64, 0, len(g.members)-1),
		ScopusID:   out.ScopusID,
		ORCID:      out.ORCID,
	}
	for _, m := range g.members[1:] {
		gr.Folded = append(gr.Folded, m.NormalizedName)
		gr.RemovedIDs = append(gr.RemovedIDs, m.ID)
	}

	if dryRun {
		log.Info().Str("kind", gr.Kind).Str("canonical", gr.Canonical).Strs("folded", gr.Folded).Msg("would merge")
		return gr
	}

	if err := c.store.MergeGroup(ctx, out, gr.RemovedIDs); err != nil {
		gr.Err = fmt.Errorf("merging into %d: %w", out.ID, err)
		gr.Error = gr.Err.Error()
		c.metrics.RecordGroupFailed()
		log.Warn().Err(err).Int64("primary_id", out.ID).Str("kind", gr.Kind).Msg("group merge failed")
		return gr
	}

	c.metrics.RecordGroupMerged(g.kind, len(g.members))
	log.Info().
		Str("kind", gr.Kind).
		Int64("primary_id", gr.PrimaryID).
		Str("canonical", gr.Canonical).
		Strs("folded", gr.Folded).
		Msg("group merged")
	return gr
}
