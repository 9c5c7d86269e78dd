// Package stagename canonicalizes stage identifiers so that names coming from
// rule templates and names recorded in the promotions database can be joined.
//
// A normalized name is uppercase, carries no diacritics, uses single spaces as
// separators and has no surrounding whitespace. Normalize is idempotent.
package stagename

import (
	"slices"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Normalize returns the canonical form of a stage name. Any value that is not
// a string yields "".
func Normalize(v any) string {
	switch s := v.(type) {
	case string:
		return String(s)
	case []byte:
		return String(string(s))
	default:
		return ""
	}
}

// String is Normalize for callers that already hold a string.
func String(s string) string {
	if s == "" {
		return ""
	}
	s = strings.ToUpper(s)
	if !isASCII(s) {
		s = strings.ToUpper(stripMarks(s))
	}
	s = strings.ReplaceAll(s, "_", " ")
	for strings.Contains(s, "  ") {
		s = strings.ReplaceAll(s, "  ", " ")
	}
	return strings.TrimSpace(s)
}

// stripMarks removes combining diacritics: Á→A, Ñ→N, Ü→U and so on.
func stripMarks(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}

// Set returns the sorted, de-duplicated normalized forms of names.
func Set(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		k := String(n)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}
