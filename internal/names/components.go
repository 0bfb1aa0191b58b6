// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package names

import (
	"cmp"
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Components is a decomposed author name.
type Components struct {
	Surname string `json:"surname" yaml:"surname"`

	// GivenNames holds the full (non-initial) given names in order.
	GivenNames []string `json:"given_names" yaml:"given_names"`

	// Initials holds one initial per given-name position, including the
	// first letter of each full given name.
	Initials []string `json:"initials" yaml:"initials"`

	// Variants holds plausible renderings of the name used as exact-match
	// lookup keys, in generation order.
	Variants []string `json:"variants" yaml:"variants"`
}

// IsEmpty reports whether no surname could be extracted.
func (c Components) IsEmpty() bool {
	return c.Surname == ""
}

// Extract decomposes a raw name into surname, given names, initials, and
// lookup variants.
//
// Supported formats:
//   - "Smith, John A."  comma: surname first
//   - "John A. Smith"   no comma: last token is the surname
//   - "Smith JA"        no comma, trailing uppercase initials (MEDLINE style)
//
// A given-name token of one letter is an initial. In mixed-case input a token
// of two or three uppercase letters ("JA") is a run of initials.
func Extract(raw string) Components {
	c := Components{GivenNames: []string{}, Initials: []string{}, Variants: []string{}}

	allCaps := isAllCaps(raw)
	surnameToks, givenToks := split(raw, allCaps)
	if len(surnameToks) == 0 {
		return c
	}

	c.Surname = strings.ToLower(strings.Join(surnameToks, " "))

	for _, tok := range givenToks {
		lower := strings.ToLower(tok)
		switch {
		case utf8.RuneCountInString(tok) == 1:
			c.Initials = append(c.Initials, lower)
		case !allCaps && isInitialRun(tok):
			for _, r := range lower {
				c.Initials = append(c.Initials, string(r))
			}
		default:
			c.GivenNames = append(c.GivenNames, lower)
			r, _ := utf8.DecodeRuneInString(lower)
			c.Initials = append(c.Initials, string(r))
		}
	}

	c.Variants = variants(c.Surname, c.GivenNames, c.Initials)
	return c
}

// split returns the surname tokens and the given-name tokens of raw, keeping
// the original case.
func split(raw string, allCaps bool) (surname, given []string) {
	if before, after, found := strings.Cut(raw, ","); found {
		if left := tokens(before); len(left) > 0 {
			return left, tokens(after)
		}
	}

	toks := tokens(raw)
	n := len(toks)
	if n == 0 {
		return nil, nil
	}

	if !allCaps {
		k := n
		for k > 1 && isInitialRun(toks[k-1]) {
			k--
		}
		if k < n && !isInitialRun(toks[0]) {
			return toks[:k], toks[k:]
		}
	}

	return toks[n-1:], toks[:n-1]
}

// isInitialRun reports whether tok is one to three uppercase letters.
func isInitialRun(tok string) bool {
	n := utf8.RuneCountInString(tok)
	if n == 0 || n > 3 {
		return false
	}
	for _, r := range tok {
		if !unicode.IsUpper(r) {
			return false
		}
	}
	return true
}

// isAllCaps reports whether s has letters and none of them are lowercase.
func isAllCaps(s string) bool {
	letters := false
	for _, r := range s {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			letters = true
		}
	}
	return letters
}

func variants(surname string, given, initials []string) []string {
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}

	add(surname)

	if len(initials) > 0 {
		spaced := strings.Join(initials, " ")
		joined := strings.Join(initials, "")
		add(spaced + " " + surname)
		add(surname + " " + spaced)
		add(joined + " " + surname)
		add(surname + " " + joined)
	}

	if len(given) > 0 {
		full := strings.Join(given, " ")
		add(full + " " + surname)
		add(surname + " " + full)

		if len(initials) > 1 {
			rest := strings.Join(initials[1:], "")
			add(given[0] + " " + rest + " " + surname)
			add(surname + " " + given[0] + " " + rest)
		}
	}

	return out
}

// richer orders variants by information content: more tokens first, then
// longer strings. Ties keep generation order under a stable sort.
func richer(a, b string) int {
	if c := cmp.Compare(len(strings.Fields(b)), len(strings.Fields(a))); c != 0 {
		return c
	}
	return cmp.Compare(len(b), len(a))
}

// Ranked returns the variants ordered from most to least informative.
func (c Components) Ranked() []string {
	out := slices.Clone(c.Variants)
	slices.SortStableFunc(out, richer)
	return out
}

// Primary returns the most informative variant, or "" when there is none.
func (c Components) Primary() string {
	if r := c.Ranked(); len(r) > 0 {
		return r[0]
	}
	return ""
}

// Canonical returns the most informative variant written given-names-first
// ("russell a poldrack"). Stored names use this form. A surname of several
// tokens is not recoverable from it by Extract; use ExtractWithSurname.
func (c Components) Canonical() string {
	for _, v := range c.Ranked() {
		if v == c.Surname || strings.HasSuffix(v, " "+c.Surname) {
			return v
		}
	}
	return c.Surname
}

// ExtractWithSurname decomposes a stored name whose surname is already known,
// such as "anna smith jones" with surname "Smith-Jones". The surname may sit
// at either end of name. When it is not found there, name is extracted as
// usual and the known surname replaces the extracted one.
func ExtractWithSurname(name, surname string) Components {
	n, s := Normalize(name), Normalize(surname)
	switch {
	case s == "":
		return Extract(name)
	case n == s:
		return Extract(s + ",")
	case strings.HasSuffix(n, " "+s):
		return Extract(s + ", " + strings.TrimSuffix(n, " "+s))
	case strings.HasPrefix(n, s+" "):
		return Extract(s + ", " + strings.TrimPrefix(n, s+" "))
	}

	c := Extract(name)
	c.Surname = s
	c.Variants = variants(s, c.GivenNames, c.Initials)
	return c
}
