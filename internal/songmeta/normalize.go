// Package songmeta turns raw now-playing strings into display fields and
// comparison keys.
package songmeta

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// leading words dropped from keys so "The Beatles" and "Beatles" collide
var articles = map[string]struct{}{
	"the": {},
	"a":   {},
	"an":  {},
}

// Normalize returns the comparison key for a title or artist. It is
// idempotent and meant for keys only, never for display.
func Normalize(text string) string {
	// Casers and transformers are stateful, build them per call
	folded := cases.Fold().String(text)

	stripMarks := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	plain, _, err := transform.String(stripMarks, folded)
	if err != nil {
		plain = folded
	}

	var b strings.Builder
	b.Grow(len(plain))
	for _, r := range plain {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsLetter(r), unicode.IsNumber(r):
			b.WriteRune(r)
		}
		// punctuation, symbols, marks and controls are dropped
	}

	words := strings.Fields(b.String())
	for len(words) > 1 {
		if _, ok := articles[words[0]]; !ok {
			break
		}
		words = words[1:]
	}
	return strings.Join(words, " ")
}

// Key returns the normalized (title, artist) pair.
func Key(title, artist string) (normalizedTitle, normalizedArtist string) {
	return Normalize(title), Normalize(artist)
}
