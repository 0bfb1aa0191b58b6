// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package names

import (
	"strings"

	"github.com/agnivade/levenshtein"
)

// Signal weights for Similarity.
const (
	initialsWeight  = 0.6
	givenNameWeight = 0.4
	crossWeight     = 0.5

	// prefixCredit is the partial credit for a given name that is a prefix of
	// the other ("russ" and "russell").
	prefixCredit = 0.8

	// minPrefixLen is the shortest given name eligible for prefix credit.
	minPrefixLen = 3
)

// Similarity returns a confidence in [0,1] that a and b name the same
// person, judged on initials and given names only. Surnames are the caller's
// concern. The score is not symmetric when given-name counts differ: the
// given-name term is the fraction of a's given names found in b.
func Similarity(a, b Components) float64 {
	var score, weight float64

	if len(a.Initials) > 0 && len(b.Initials) > 0 {
		weight += initialsWeight
		score += initialsWeight * initialOverlap(a.Initials, b.Initials)
	}

	switch {
	case len(a.GivenNames) > 0 && len(b.GivenNames) > 0:
		weight += givenNameWeight
		score += givenNameWeight * givenNameOverlap(a.GivenNames, b.GivenNames)
	case (len(a.Initials) > 0 && len(b.GivenNames) > 0) || (len(a.GivenNames) > 0 && len(b.Initials) > 0):
		weight += crossWeight
		score += crossWeight * crossOverlap(a, b)
	}

	if weight == 0 {
		return 0
	}
	return score / weight
}

// SymmetricSimilarity returns the larger of Similarity(a, b) and
// Similarity(b, a).
func SymmetricSimilarity(a, b Components) float64 {
	return max(Similarity(a, b), Similarity(b, a))
}

// initialOverlap is |set(a) ∩ set(b)| / max(len(a), len(b)).
func initialOverlap(a, b []string) float64 {
	inB := make(map[string]bool, len(b))
	for _, i := range b {
		inB[i] = true
	}
	seen := make(map[string]bool, len(a))
	common := 0
	for _, i := range a {
		if inB[i] && !seen[i] {
			common++
		}
		seen[i] = true
	}
	return float64(common) / float64(max(len(a), len(b)))
}

// givenNameOverlap credits each of a's given names with 1 for an exact match
// in b or prefixCredit for a prefix relation, and returns the mean credit.
func givenNameOverlap(a, b []string) float64 {
	var credit float64
	for _, x := range a {
		for _, y := range b {
			if x == y {
				credit++
				break
			}
			if len(x) >= minPrefixLen && len(y) >= minPrefixLen &&
				(strings.HasPrefix(x, y) || strings.HasPrefix(y, x)) {
				credit += prefixCredit
				break
			}
		}
	}
	return credit / float64(len(a))
}

// crossOverlap compares initials on one side with given names on the other,
// position by position.
func crossOverlap(a, b Components) float64 {
	initials, given := a.Initials, b.GivenNames
	if len(b.GivenNames) == 0 {
		initials, given = b.Initials, a.GivenNames
	}
	if len(initials) == 0 {
		return 0
	}
	matches := 0
	for i, initial := range initials {
		if i < len(given) && strings.HasPrefix(given[i], initial) {
			matches++
		}
	}
	return float64(matches) / float64(len(initials))
}

// EditDistance returns the Levenshtein distance between a and b with unit
// costs for insertion, deletion, and substitution, counted in runes.
func EditDistance(a, b string) int {
	return levenshtein.ComputeDistance(a, b)
}

// NearMatch reports whether candidate is within maxDist edits of variant,
// ignoring candidates shorter than minLen.
func NearMatch(variant, candidate string, maxDist, minLen int) bool {
	if len(candidate) < minLen {
		return false
	}
	return EditDistance(variant, candidate) <= maxDist
}
