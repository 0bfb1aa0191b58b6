// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "cvdb"

// Cascade phase labels.
const (
	PhaseExact = "exact"
	PhaseFuzzy = "fuzzy"
	PhaseEdit  = "edit_distance"
)

// Upsert outcome labels.
const (
	OutcomeCreated   = "created"
	OutcomeUpdated   = "updated"
	OutcomeUnchanged = "unchanged"
	OutcomeSkipped   = "skipped"
)

// Metrics holds the identity cache counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	// CascadeMatches counts cascade hits by phase.
	CascadeMatches *prometheus.CounterVec

	// CascadeMisses counts lookups that fell through every phase.
	CascadeMisses prometheus.Counter

	// Upserts counts upserts by outcome.
	Upserts *prometheus.CounterVec

	// GroupsConsolidated counts merged duplicate groups by kind (scopus, orcid, name).
	GroupsConsolidated *prometheus.CounterVec

	// EntriesMerged counts records folded into a primary and deleted.
	EntriesMerged prometheus.Counter

	// ConsolidationFailures counts groups whose merge failed.
	ConsolidationFailures prometheus.Counter
}

// NewMetrics creates the metrics and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		CascadeMatches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_matches_total",
			Help:      "Author lookups resolved by the match cascade, by phase",
		}, []string{"phase"}),
		CascadeMisses: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cascade_misses_total",
			Help:      "Author lookups that matched no cached identity",
		}),
		Upserts: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "upserts_total",
			Help:      "Author sightings cached, by outcome",
		}, []string{"outcome"}),
		GroupsConsolidated: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "groups_consolidated_total",
			Help:      "Duplicate groups merged by consolidation, by kind",
		}, []string{"kind"}),
		EntriesMerged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entries_merged_total",
			Help:      "Identity records folded into a primary and deleted",
		}),
		ConsolidationFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "consolidation_failures_total",
			Help:      "Duplicate groups whose merge failed",
		}),
	}
}

// RecordMatch records a cascade hit in phase.
func (m *Metrics) RecordMatch(phase string) {
	if m == nil {
		return
	}
	m.CascadeMatches.WithLabelValues(phase).Inc()
}

// RecordMiss records a lookup that found nothing.
func (m *Metrics) RecordMiss() {
	if m == nil {
		return
	}
	m.CascadeMisses.Inc()
}

// RecordUpsert records an upsert outcome.
func (m *Metrics) RecordUpsert(outcome string) {
	if m == nil {
		return
	}
	m.Upserts.WithLabelValues(outcome).Inc()
}

// RecordGroupMerged records a merged group of size members.
func (m *Metrics) RecordGroupMerged(kind string, size int) {
	if m == nil {
		return
	}
	m.GroupsConsolidated.WithLabelValues(kind).Inc()
	m.EntriesMerged.Add(float64(size - 1))
}

// RecordGroupFailed records a group whose merge failed.
func (m *Metrics) RecordGroupFailed() {
	if m == nil {
		return
	}
	m.ConsolidationFailures.Inc()
}
