// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package names canonicalizes author name strings, decomposes them into
// surname, given names, and initials, and scores how likely two decomposed
// names denote the same person.
package names

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// isSeparator reports whether r splits name tokens: whitespace and the
// punctuation set . , - _ ' " ( ).
func isSeparator(r rune) bool {
	switch r {
	case '.', ',', '-', '_', '\'', '"', '(', ')':
		return true
	}
	return unicode.IsSpace(r)
}

// isSuffix reports whether a lowercase token is a generational suffix.
func isSuffix(tok string) bool {
	return tok == "jr" || tok == "sr"
}

// tokens splits s on separators and drops jr/sr suffix tokens. Case is kept.
func tokens(s string) []string {
	fields := strings.FieldsFunc(s, isSeparator)
	out := fields[:0]
	for _, f := range fields {
		if isSuffix(strings.ToLower(f)) {
			continue
		}
		out = append(out, f)
	}
	return out
}

// Normalize returns the comparison-safe form of a raw name: lowercase,
// punctuation replaced by spaces, jr/sr suffixes removed, whitespace
// collapsed. Normalize(Normalize(s)) == Normalize(s).
func Normalize(name string) string {
	return strings.Join(tokens(strings.ToLower(name)), " ")
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// FoldAccents removes combining diacritics ("Müller" becomes "Muller").
// Case and punctuation are left alone.
func FoldAccents(name string) string {
	out, _, err := transform.String(stripMarks, name)
	if err != nil {
		return name
	}
	return out
}
