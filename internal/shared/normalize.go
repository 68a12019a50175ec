package shared

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var stripAccents = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize lowercases and strips accents so status values compare the way
// operators type them ("Não Pago" == "nao pago").
func Normalize(s string) string {
	out, _, err := transform.String(stripAccents, s)
	if err != nil {
		out = s
	}
	return strings.ToLower(strings.TrimSpace(out))
}

// EqualFoldAccents compares two strings ignoring case and accents.
func EqualFoldAccents(a, b string) bool {
	return Normalize(a) == Normalize(b)
}
