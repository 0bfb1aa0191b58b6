// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package observability

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pdiddy/cvdb/pkg/types"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want zerolog.Level
	}{
		{"trace", zerolog.TraceLevel},
		{"DEBUG", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"off", zerolog.Disabled},
		{"bogus", zerolog.InfoLevel},
		{"", zerolog.InfoLevel},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.in), "level %q", tt.in)
	}
}

func TestNewLoggerToJSON(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, types.LoggingConfig{Level: "info", Format: "json"})

	log.Debug().Msg("hidden")
	log.Info().Str("surname", "poldrack").Msg("cached")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "cached", entry["message"])
	assert.Equal(t, "poldrack", entry["surname"])
	assert.Equal(t, "info", entry["level"])
	assert.Contains(t, entry, "time")
}

func TestNewLoggerToConsole(t *testing.T) {
	var buf bytes.Buffer
	log := NewLoggerTo(&buf, types.LoggingConfig{Level: "debug", Format: "console"})

	log.Debug().Msg("phase one")
	assert.Contains(t, buf.String(), "phase one")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.RecordMatch(PhaseExact)
	m.RecordMatch(PhaseExact)
	m.RecordMatch(PhaseFuzzy)
	m.RecordMiss()
	m.RecordUpsert(OutcomeCreated)
	m.RecordGroupMerged("scopus", 3)
	m.RecordGroupFailed()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.CascadeMatches.WithLabelValues(PhaseExact)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMatches.WithLabelValues(PhaseFuzzy)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.CascadeMisses))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Upserts.WithLabelValues(OutcomeCreated)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.GroupsConsolidated.WithLabelValues("scopus")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntriesMerged))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ConsolidationFailures))

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestNilMetricsRecordNothing(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordMatch(PhaseEdit)
		m.RecordMiss()
		m.RecordUpsert(OutcomeSkipped)
		m.RecordGroupMerged("name", 2)
		m.RecordGroupFailed()
	})
}
