// Package resolve maps provider-specific identifiers and names to canonical
// entities, tolerating spelling variants, diacritics and partial overlap.
package resolve

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, removes combining marks (diacritics) and
// recomposes, so "José" and "Jose" normalize identically.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// clubSuffixes are legal-entity and club-form tokens dropped from team
// names: "Real Oviedo CF" and "Real Oviedo" must normalize identically.
var clubSuffixes = map[string]struct{}{
	"fc": {}, "cf": {}, "afc": {}, "cfc": {}, "ac": {}, "sc": {}, "bc": {},
	"cd": {}, "ud": {}, "sd": {}, "fk": {}, "bk": {}, "if": {}, "sv": {},
	"club": {}, "calcio": {}, "deportivo": {},
}

// NormalizeName case-folds, strips diacritics, collapses whitespace and
// drops club suffix tokens. Returns "" for blank input.
func NormalizeName(raw string) string {
	s, _, err := transform.String(stripMarks, raw)
	if err != nil {
		s = raw
	}
	s = strings.ToLower(s)

	fields := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
	kept := fields[:0]
	for _, f := range fields {
		if _, drop := clubSuffixes[f]; drop {
			continue
		}
		kept = append(kept, f)
	}
	if len(kept) == 0 {
		// A name made entirely of suffix tokens still identifies something.
		kept = fields
	}
	return strings.Join(kept, " ")
}

// tokens splits a normalized name into its word set.
func tokens(normalized string) []string {
	return strings.Fields(normalized)
}
