// Package cmdutil provides shared command utility functions.
package cmdutil

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// foldReplacer handles letters that don't decompose into ASCII base + mark.
var foldReplacer = strings.NewReplacer(
	"ß", "ss",
	"æ", "ae",
	"Æ", "ae",
	"œ", "oe",
	"Œ", "oe",
	"ø", "o",
	"Ø", "o",
	"đ", "d",
	"Đ", "d",
	"ł", "l",
	"Ł", "l",
	"ı", "i",
)

// Flatten returns the ASCII-folded, lower-cased projection of s that is used
// for accent- and case-insensitive matching. Whitespace runs collapse to a
// single space and the result is trimmed.
func Flatten(s string) string {
	if s == "" {
		return ""
	}

	// A transform chain keeps state, so it can't be shared between goroutines.
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	folded = foldReplacer.Replace(folded)

	return strings.Join(strings.Fields(strings.ToLower(folded)), " ")
}

// FlattenPtr flattens an optional string, preserving nil.
func FlattenPtr(s *string) *string {
	if s == nil {
		return nil
	}
	flat := Flatten(*s)
	return &flat
}

// IsNumeric checks if a string contains only digits.
func IsNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// HasWordChar reports whether s contains at least one letter or digit.
// Full-text tokenizers drop everything else, so words without one can't match.
func HasWordChar(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
