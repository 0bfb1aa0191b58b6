// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

import (
	"slices"
	"time"
)

// Source identifies the provenance of the most authoritative evidence for an
// identity record.
type Source string

const (
	SourceScopus   Source = "scopus"
	SourceORCID    Source = "orcid"
	SourceManual   Source = "manual"
	SourceCrossRef Source = "crossref"
)

// ParseSource maps a free-form provenance string onto a Source. Unknown or
// empty values map to SourceManual.
func ParseSource(s string) Source {
	switch Source(s) {
	case SourceScopus, SourceORCID, SourceManual, SourceCrossRef:
		return Source(s)
	default:
		return SourceManual
	}
}

// IdentityRecord is one cache entry: the stored belief about one real author.
type IdentityRecord struct {
	// ID is the store-assigned primary key.
	ID int64 `json:"id" yaml:"id"`

	// NormalizedName is the canonical lookup key. It is not unique across records.
	NormalizedName string `json:"normalized_name" yaml:"normalized_name"`

	// NameVariations holds every raw name string observed for this person, in
	// first-seen order.
	NameVariations []string `json:"name_variations" yaml:"name_variations"`

	// ScopusID is the Scopus Author ID. Empty means absent.
	ScopusID string `json:"scopus_id,omitempty" yaml:"scopus_id,omitempty"`

	// ORCID is the ORCID iD. Empty means absent.
	ORCID string `json:"orcid_id,omitempty" yaml:"orcid_id,omitempty"`

	GivenName string `json:"given_name,omitempty" yaml:"given_name,omitempty"`
	Surname   string `json:"surname,omitempty" yaml:"surname,omitempty"`

	// Affiliations holds institution strings observed, in first-seen order.
	Affiliations []string `json:"affiliations" yaml:"affiliations"`

	Source Source `json:"source" yaml:"source"`

	// ConfidenceScore is the belief in [0,1] that this record denotes one
	// correctly identified person.
	ConfidenceScore float64 `json:"confidence_score" yaml:"confidence_score"`

	// LookupCount is incremented every time the record is matched and reused.
	LookupCount int `json:"lookup_count" yaml:"lookup_count"`

	LastVerified       *time.Time `json:"last_verified,omitempty" yaml:"last_verified,omitempty"`
	VerificationMethod string     `json:"verification_method,omitempty" yaml:"verification_method,omitempty"`

	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// HasIdentifier reports whether the record carries a strong identifier.
func (r *IdentityRecord) HasIdentifier() bool {
	return r.ScopusID != "" || r.ORCID != ""
}

// AddVariation appends name to NameVariations unless it is empty or present.
// It reports whether the set changed.
func (r *IdentityRecord) AddVariation(name string) bool {
	if name == "" || slices.Contains(r.NameVariations, name) {
		return false
	}
	r.NameVariations = append(r.NameVariations, name)
	return true
}

// AddAffiliations unions affs into Affiliations and reports whether the set
// changed.
func (r *IdentityRecord) AddAffiliations(affs ...string) bool {
	changed := false
	for _, a := range affs {
		if a == "" || slices.Contains(r.Affiliations, a) {
			continue
		}
		r.Affiliations = append(r.Affiliations, a)
		changed = true
	}
	return changed
}

// ConflictsWith reports whether r and other carry different values for the
// same strong identifier.
func (r *IdentityRecord) ConflictsWith(other *IdentityRecord) bool {
	return IdentifiersConflict(r.ScopusID, other.ScopusID) || IdentifiersConflict(r.ORCID, other.ORCID)
}

// IdentifiersConflict reports whether a and b are both present and differ.
func IdentifiersConflict(a, b string) bool {
	return a != "" && b != "" && a != b
}

// Clone returns a deep copy of the record.
func (r *IdentityRecord) Clone() *IdentityRecord {
	c := *r
	c.NameVariations = slices.Clone(r.NameVariations)
	c.Affiliations = slices.Clone(r.Affiliations)
	if r.LastVerified != nil {
		t := *r.LastVerified
		c.LastVerified = &t
	}
	return &c
}

// Sighting is one observation of an author on a publication, as produced by
// the ORCID, Scopus, PubMed, and CrossRef sync jobs.
type Sighting struct {
	Name         string   `json:"name,omitempty" yaml:"name,omitempty"`
	ScopusID     string   `json:"scopus_id,omitempty" yaml:"scopus_id,omitempty"`
	ORCID        string   `json:"orcid_id,omitempty" yaml:"orcid_id,omitempty"`
	GivenName    string   `json:"given_name,omitempty" yaml:"given_name,omitempty"`
	Surname      string   `json:"surname,omitempty" yaml:"surname,omitempty"`
	Affiliations []string `json:"affiliations,omitempty" yaml:"affiliations,omitempty"`
	Source       Source   `json:"source,omitempty" yaml:"source,omitempty"`

	// Confidence is the caller's belief in this sighting. Nil means 1.0.
	Confidence *float64 `json:"confidence_score,omitempty" yaml:"confidence_score,omitempty"`
}

// DefaultSightingConfidence is the confidence of a sighting that does not
// state one.
const DefaultSightingConfidence = 1.0

// ConfidenceOrDefault returns the sighting confidence, or 1.0 when unset.
func (s Sighting) ConfidenceOrDefault() float64 {
	if s.Confidence == nil {
		return DefaultSightingConfidence
	}
	return *s.Confidence
}

// HasIdentifier reports whether the sighting carries a strong identifier.
func (s Sighting) HasIdentifier() bool {
	return s.ScopusID != "" || s.ORCID != ""
}

// IsEmpty reports whether the sighting has nothing to resolve on.
func (s Sighting) IsEmpty() bool {
	return s.Name == "" && !s.HasIdentifier()
}

// Publication is the subset of a publication record the cache needs: its
// provenance and its author list.
type Publication struct {
	Title   string     `json:"title,omitempty" yaml:"title,omitempty"`
	Source  string     `json:"source,omitempty" yaml:"source,omitempty"`
	Authors []Sighting `json:"authors" yaml:"authors"`
}
