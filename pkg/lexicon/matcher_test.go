package lexicon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
)

func blockEntry(term string) Entry {
	return Entry{
		Term:       term,
		Action:     moderation.ActionBlock,
		Label:      moderation.LabelIncitementViolence,
		ReasonCode: "R_INCITE_CALL_TO_HARM",
		Severity:   3,
		Lang:       "en",
	}
}

func reviewEntry(term string) Entry {
	return Entry{
		Term:       term,
		Action:     moderation.ActionReview,
		Label:      moderation.LabelDogwhistleWatch,
		ReasonCode: "R_DOGWHISTLE_CONTEXT_REQUIRED",
		Severity:   2,
		Lang:       "en",
	}
}

func match(m *Matcher, text string) []Match {
	return m.Match(normalize.Normalize(text))
}

func TestMatcherMatchesSingleWordTermOnBoundaries(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("kill")}})
	matches := match(m, "They should kill them now.")
	require.Len(t, matches, 1)
	assert.Equal(t, "kill", matches[0].Entry.Term)
}

func TestMatcherDoesNotMatchInsideLargerWord(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("kill")}})
	assert.Empty(t, match(m, "This skill matters for campaign safety."))
	assert.Empty(t, match(m, "We can overkill the analysis."))
}

func TestMatcherMatchesPhraseAcrossPunctuation(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("burn them")}})
	matches := match(m, "They said: burn, them now.")
	require.Len(t, matches, 1)
	assert.Equal(t, "burn them", matches[0].Entry.Term)
}

func TestMatcherPhraseRequiresContiguousTokens(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("burn them")}})
	assert.Empty(t, match(m, "burn the house, them included"))
}

func TestMatcherNormalizesCaseAndUnicodeApostrophe(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("MCHOME")}})
	matches := match(m, "Mchome now!")
	require.Len(t, matches, 1)
	assert.Equal(t, "MCHOME", matches[0].Entry.Term)
}

func TestMatcherCatchesSeparatorEvasion(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("kill")}})
	matches := match(m, "they should k.i.l.l them")
	require.Len(t, matches, 1)
	assert.Equal(t, "kill", matches[0].Entry.Term)
}

func TestMatcherOrdersByFirstOccurrence(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{
		blockEntry("kill"),
		reviewEntry("wale watu"),
	}})
	matches := match(m, "wale watu will kill")
	require.Len(t, matches, 2)
	assert.Equal(t, "wale watu", matches[0].Entry.Term)
	assert.Equal(t, "kill", matches[1].Entry.Term)
	assert.Less(t, matches[0].TokenIndex, matches[1].TokenIndex)
}

func TestMatcherReportsEachEntryOnceAtFirstOccurrence(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("kill")}})
	matches := match(m, "kill kill kill")
	require.Len(t, matches, 1)
	assert.Equal(t, 0, matches[0].TokenIndex)
}

func TestMatcherSkipsDeprecatedEntries(t *testing.T) {
	deprecated := blockEntry("kill")
	deprecated.Status = StatusDeprecated
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{deprecated}})
	assert.Empty(t, match(m, "kill"))
}

func TestMatcherIsDeterministic(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{
		blockEntry("kill"),
		blockEntry("burn them"),
		reviewEntry("stolen ballots"),
	}})
	text := "burn them, kill, and the stolen ballots story"
	first := match(m, text)
	second := match(m, text)
	assert.Equal(t, first, second)
}

func TestEvidenceForCarriesEntryFields(t *testing.T) {
	m := NewMatcher(&Snapshot{Version: "v", Entries: []Entry{blockEntry("kill")}})
	matches := match(m, "kill")
	require.Len(t, matches, 1)
	ev := EvidenceFor(matches[0])
	assert.Equal(t, moderation.EvidenceLexicon, ev.Type)
	assert.Equal(t, "kill", ev.Match)
	assert.Equal(t, 3, ev.Severity)
	assert.Equal(t, "en", ev.Lang)
}
