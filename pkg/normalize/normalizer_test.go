package normalize

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLowerCasesAndTokenizes(t *testing.T) {
	res := Normalize("They should KILL them now.")
	assert.Equal(t, "they should kill them now", res.Canonical)
	assert.Equal(t, []string{"they", "should", "kill", "them", "now"}, res.TokenTexts())
}

func TestNormalizeFoldsTypographicApostrophe(t *testing.T) {
	res := Normalize("Don’t")
	require.Len(t, res.Tokens, 1)
	assert.Equal(t, "don't", res.Tokens[0].Text)
}

func TestNormalizeTokenOffsetsPointIntoOriginalText(t *testing.T) {
	text := "burn, them now"
	res := Normalize(text)
	require.Len(t, res.Tokens, 3)
	for _, tok := range res.Tokens {
		assert.True(t, tok.Start >= 0 && tok.End <= len(text))
		assert.Less(t, tok.Start, tok.End)
	}
	assert.Equal(t, "burn", text[res.Tokens[0].Start:res.Tokens[0].End])
	assert.Equal(t, "them", text[res.Tokens[1].Start:res.Tokens[1].End])
}

func TestNormalizeCollapsesSeparatorEvasion(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{"dot separated", "k.i.l.l them", []string{"kill", "them"}},
		{"space separated", "k i l l them", []string{"kill", "them"}},
		{"dash separated", "k-i-l-l", []string{"kill"}},
		{"two letters stay apart", "a b", []string{"a", "b"}},
		{"wide gaps stay apart", "k . i . l . l", []string{"k", "i", "l", "l"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Normalize(tc.text).TokenTexts())
		})
	}
}

func TestNormalizeEmptyAndPunctuationOnly(t *testing.T) {
	assert.Empty(t, Normalize("").Tokens)
	assert.Empty(t, Normalize("!!! ---").Tokens)
	assert.Equal(t, "", Normalize("!!!").Canonical)
}

func TestNormalizeIsDeterministic(t *testing.T) {
	text := "Wále watu w.a.t.a.o.n.a moto, sasa!"
	first := Normalize(text)
	second := Normalize(text)
	assert.Equal(t, first, second)
}

func TestNormalizeDigitsAreTokens(t *testing.T) {
	res := Normalize("manipulated in 12 constituencies")
	assert.Contains(t, res.TokenTexts(), "12")
}

func TestNormalizeOffsetsStayInOriginalTextWhenNFKCExpands(t *testing.T) {
	// "¼" expands under NFKC ("1⁄4"), "ﬁ" expands to "fi"; offsets must
	// still point into the original bytes.
	tests := []string{
		"¼¼¼¼¼¼ watu",
		"ﬁre the ﬁrst tally",
		"№5 results ½ done",
	}
	for _, text := range tests {
		t.Run(text, func(t *testing.T) {
			res := Normalize(text)
			require.NotEmpty(t, res.Tokens)
			prevStart := 0
			for _, tok := range res.Tokens {
				assert.GreaterOrEqual(t, tok.Start, 0)
				assert.LessOrEqual(t, tok.End, len(text))
				assert.LessOrEqual(t, tok.Start, tok.End)
				assert.GreaterOrEqual(t, tok.Start, prevStart)
				prevStart = tok.Start
			}
		})
	}
}

func TestNormalizeExpandedTokenCoversItsSourceRunes(t *testing.T) {
	text := "ﬁre now"
	res := Normalize(text)
	require.Len(t, res.Tokens, 2)
	assert.Equal(t, "fire", res.Tokens[0].Text)
	assert.Equal(t, "ﬁre", text[res.Tokens[0].Start:res.Tokens[0].End])
	assert.Equal(t, "now", text[res.Tokens[1].Start:res.Tokens[1].End])
}
