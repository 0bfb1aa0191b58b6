// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package types

// CacheConfig holds the tunable constants of the matching and consolidation
// engine. Zero fields take their defaults (see DefaultCacheConfig).
type CacheConfig struct {
	// SimilarityThreshold is the minimum name similarity for a fuzzy match (default 0.7).
	SimilarityThreshold float64 `json:"similarity_threshold" yaml:"similarity_threshold" mapstructure:"similarity_threshold"`

	// FuzzyCandidates bounds the surname-gated candidate scan (default 20).
	FuzzyCandidates int `json:"fuzzy_candidates" yaml:"fuzzy_candidates" mapstructure:"fuzzy_candidates"`

	// EditCandidates bounds the edit-distance fallback scan (default 10).
	EditCandidates int `json:"edit_candidates" yaml:"edit_candidates" mapstructure:"edit_candidates"`

	// MaxEditDistance is the largest Levenshtein distance accepted by the fallback (default 2).
	MaxEditDistance int `json:"max_edit_distance" yaml:"max_edit_distance" mapstructure:"max_edit_distance"`

	// MinFuzzyLength is the shortest name the fallback will compare (default 5).
	MinFuzzyLength int `json:"min_fuzzy_length" yaml:"min_fuzzy_length" mapstructure:"min_fuzzy_length"`

	// IdentifierConfidence is the confidence floor for records carrying a
	// Scopus ID or ORCID (default 0.9).
	IdentifierConfidence float64 `json:"identifier_confidence" yaml:"identifier_confidence" mapstructure:"identifier_confidence"`

	// ConfidenceBoost is added to a record's confidence when consolidation or
	// verification corroborates it (default 0.1).
	ConfidenceBoost float64 `json:"confidence_boost" yaml:"confidence_boost" mapstructure:"confidence_boost"`

	// FoldAccents strips diacritics from raw names before extraction.
	FoldAccents bool `json:"fold_accents" yaml:"fold_accents" mapstructure:"fold_accents"`
}

// DefaultCacheConfig returns the engine defaults.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		SimilarityThreshold:  0.7,
		FuzzyCandidates:      20,
		EditCandidates:       10,
		MaxEditDistance:      2,
		MinFuzzyLength:       5,
		IdentifierConfidence: 0.9,
		ConfidenceBoost:      0.1,
	}
}

// WithDefaults returns c with every zero field replaced by its default.
func (c CacheConfig) WithDefaults() CacheConfig {
	d := DefaultCacheConfig()
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.FuzzyCandidates <= 0 {
		c.FuzzyCandidates = d.FuzzyCandidates
	}
	if c.EditCandidates <= 0 {
		c.EditCandidates = d.EditCandidates
	}
	if c.MaxEditDistance <= 0 {
		c.MaxEditDistance = d.MaxEditDistance
	}
	if c.MinFuzzyLength <= 0 {
		c.MinFuzzyLength = d.MinFuzzyLength
	}
	if c.IdentifierConfidence <= 0 {
		c.IdentifierConfidence = d.IdentifierConfidence
	}
	if c.ConfidenceBoost <= 0 {
		c.ConfidenceBoost = d.ConfidenceBoost
	}
	return c
}

// StoreConfig holds settings for the SQLite identity cache.
type StoreConfig struct {
	// Path is the SQLite database file (default "cvdb.db").
	Path string `json:"path" yaml:"path" mapstructure:"path"`

	// AllowDuplicateIdentifiers disables the unique indexes on non-empty
	// scopus_id and orcid_id. Imports of legacy data that already contain
	// duplicates need it so consolidation can fold them.
	AllowDuplicateIdentifiers bool `json:"allow_duplicate_identifiers" yaml:"allow_duplicate_identifiers" mapstructure:"allow_duplicate_identifiers"`
}

// LoggingConfig holds logger settings.
type LoggingConfig struct {
	// Level is the minimum level: trace, debug, info, warn, error.
	Level string `json:"level" yaml:"level" mapstructure:"level"`

	// Format is json or console.
	Format string `json:"format" yaml:"format" mapstructure:"format"`

	// Output is stdout or stderr.
	Output string `json:"output" yaml:"output" mapstructure:"output"`
}

// DefaultLoggingConfig returns console logging at info level on stderr.
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level:  "info",
		Format: "console",
		Output: "stderr",
	}
}

// Config groups all settings read from cvdb.yaml.
type Config struct {
	AuthorCache CacheConfig   `json:"author_cache" yaml:"author_cache" mapstructure:"author_cache"`
	Store       StoreConfig   `json:"store" yaml:"store" mapstructure:"store"`
	Logging     LoggingConfig `json:"logging" yaml:"logging" mapstructure:"logging"`
}
