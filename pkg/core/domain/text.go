package domain

import (
	"strings"
	"unicode"
	"unicode/utf16"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NormalizeText drops NUL bytes, which PostgreSQL text columns reject, and
// trims surrounding whitespace.
func NormalizeText(raw string) string {
	return strings.TrimSpace(strings.ReplaceAll(raw, "\x00", ""))
}

// TextKey is the uniqueness key of a normalized text: case folded with
// diacritics stripped, so "Éclair" and "eclair" collide.
func TextKey(text string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), cases.Fold(), norm.NFC)
	key, _, err := transform.String(t, text)
	if err != nil {
		return strings.ToLower(text)
	}
	return key
}

// TextLength counts UTF-16 code units.
func TextLength(text string) int {
	n := 0
	for _, r := range text {
		n += utf16.RuneLen(r)
	}
	return n
}
