// Package textnorm canonicalizes free-text counterparty and description
// strings from bank feeds so that fuzzy matching compares like with like.
// Bank feeds mix half-width katakana, full-width Latin and assorted noise
// ("振込", corporate-type markers) around the name that actually matters.
package textnorm

import (
	"strings"
	"unicode"

	"golang.org/x/text/width"
)

// Normalizer holds the lookup tables used for stripping. Tables are supplied
// by configuration so installations can extend them without a rebuild.
type Normalizer struct {
	corporateMarkers []string
	noiseWords       []string
}

func New(corporateMarkers, noiseWords []string) *Normalizer {
	n := &Normalizer{
		corporateMarkers: make([]string, 0, len(corporateMarkers)),
		noiseWords:       make([]string, 0, len(noiseWords)),
	}
	// Tables are folded once so they match folded input.
	for _, m := range corporateMarkers {
		n.corporateMarkers = append(n.corporateMarkers, Fold(m))
	}
	for _, w := range noiseWords {
		n.noiseWords = append(n.noiseWords, Fold(w))
	}
	return n
}

// Fold canonicalizes character width (half-width katakana to full-width,
// full-width Latin to ASCII) and upper-cases Latin letters.
func Fold(s string) string {
	return strings.ToUpper(width.Fold.String(s))
}

// Normalize runs the full pipeline: width/case folding, corporate-marker and
// banking-noise stripping, punctuation removal.
func (n *Normalizer) Normalize(s string) string {
	folded := Fold(s)
	stripped := n.stripMarkers(folded)
	return strings.TrimSpace(stripPunct(stripped))
}

func (n *Normalizer) stripMarkers(s string) string {
	for _, m := range n.corporateMarkers {
		s = strings.ReplaceAll(s, m, " ")
	}
	for _, w := range n.noiseWords {
		s = strings.ReplaceAll(s, w, " ")
	}
	return s
}

// Tokens normalizes and splits into comparison tokens.
func (n *Normalizer) Tokens(s string) []string {
	return strings.Fields(n.Normalize(s))
}

// ExtractPhrase pulls the counterparty phrase out of a statement
// description: noise words and corporate markers are stripped and the first
// remaining run of text is taken as the phrase.
func (n *Normalizer) ExtractPhrase(description string) string {
	fields := strings.Fields(n.Normalize(description))
	if len(fields) == 0 {
		return ""
	}
	return strings.Join(fields, " ")
}

// TokenOverlap scores two token sets as intersection over the larger set.
func TokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}

	common := 0
	seen := make(map[string]bool, len(b))
	for _, t := range b {
		if set[t] && !seen[t] {
			common++
			seen[t] = true
		}
	}

	larger := len(a)
	if len(b) > larger {
		larger = len(b)
	}
	return float64(common) / float64(larger)
}

func stripPunct(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			b.WriteRune(' ')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}
