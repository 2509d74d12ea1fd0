// Package normalize canonicalizes query and vocabulary text so both sides of a
// comparison are in the same form.
package normalize

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// typographic maps look-alike punctuation to its ASCII form.
var typographic = map[rune]rune{
	'‘': '\'', '’': '\'', '‚': '\'', '‛': '\'', '′': '\'', '`': '\'',
	'“': '"', '”': '"', '„': '"', '″': '"',
	'‐': '-', '‑': '-', '‒': '-', '–': '-', '—': '-', '―': '-', '−': '-',
	'_': ' ',
}

// Normalize returns the canonical form of s: NFKC, case folded, typographic
// punctuation mapped to ASCII, punctuation stripped at token boundaries, and
// whitespace collapsed. It is pure and idempotent.
func Normalize(s string) string {
	if s == "" {
		return ""
	}
	s = norm.NFKC.String(s)
	// Casers keep state, so one per call.
	s = cases.Fold().String(s)
	s = norm.NFKC.String(s)

	s = strings.Map(func(r rune) rune {
		if m, ok := typographic[r]; ok {
			return m
		}
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return ' '
		}
		return r
	}, s)

	fields := strings.Fields(s)
	out := fields[:0]
	for _, f := range fields {
		f = strings.TrimFunc(f, isBoundaryPunct)
		if f != "" {
			out = append(out, f)
		}
	}
	return strings.Join(out, " ")
}

// Tokens returns the whitespace-separated tokens of the normalized form of s.
func Tokens(s string) []string {
	return strings.Fields(Normalize(s))
}

// IsPhrase reports whether a normalized string has more than one token.
func IsPhrase(normalized string) bool {
	return strings.ContainsRune(normalized, ' ')
}

func isBoundaryPunct(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSymbol(r)
}
