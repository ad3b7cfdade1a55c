package textnorm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

var (
	testMarkers = []string{"株式会社", "（株）", "(株)", "カ）", "カ)"}
	testNoise   = []string{"振込", "フリコミ", "ATM"}
)

func TestFold(t *testing.T) {
	// Half-width katakana folds to full-width.
	assert.Equal(t, "タナカ", Fold("ﾀﾅｶ"))
	// Full-width Latin folds to ASCII and upper-cases.
	assert.Equal(t, "ABC", Fold("ａｂｃ"))
	assert.Equal(t, "ACME CORP", Fold("acme corp"))
}

func TestNormalizer_Normalize(t *testing.T) {
	n := New(testMarkers, testNoise)

	// Corporate marker and banking noise are stripped.
	assert.Equal(t, "ヤマダ商事", n.Normalize("振込 株式会社ヤマダ商事"))

	// Half-width marker matches the folded table entry.
	assert.Equal(t, "タナカ", n.Normalize("ｶ)ﾀﾅｶ"))

	// Punctuation becomes separators and edges are trimmed.
	assert.Equal(t, "ABC  DEF", n.Normalize("(ABC) DEF"))

	assert.Equal(t, "", n.Normalize("振込 ATM"))
}

func TestNormalizer_Tokens(t *testing.T) {
	n := New(testMarkers, testNoise)

	assert.Equal(t, []string{"ヤマダ", "商事"}, n.Tokens("振込 ヤマダ 商事"))
	assert.Empty(t, n.Tokens("ATM"))
}

func TestNormalizer_ExtractPhrase(t *testing.T) {
	n := New(testMarkers, testNoise)

	assert.Equal(t, "ヤマダ商事", n.ExtractPhrase("振込 株式会社ヤマダ商事"))
	assert.Equal(t, "", n.ExtractPhrase("振込"))
	// Multiple remaining runs are rejoined with single spaces.
	assert.Equal(t, "ヤマダ 商事", n.ExtractPhrase("  ヤマダ   商事  "))
}

func TestTokenOverlap(t *testing.T) {
	assert.Equal(t, 1.0, TokenOverlap([]string{"A", "B"}, []string{"A", "B"}))
	assert.Equal(t, 0.5, TokenOverlap([]string{"A", "B"}, []string{"A", "C"}))
	// Intersection over the larger set.
	assert.InDelta(t, 1.0/3.0, TokenOverlap([]string{"A"}, []string{"A", "B", "C"}), 1e-9)
	assert.Equal(t, 0.0, TokenOverlap(nil, []string{"A"}))
	// Duplicate tokens in the candidate count once.
	assert.Equal(t, 0.5, TokenOverlap([]string{"A", "B"}, []string{"A", "A"}))
}
