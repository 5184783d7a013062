package lexicon

import (
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
)

// Match is one lexicon hit, positioned at the first token where the term
// occurred so evidence can be ordered by occurrence in the text.
type Match struct {
	Entry      Entry
	TokenIndex int // index of the first matched token
	Start      int // byte offset of the match in the original text
	End        int // byte offset (exclusive) in the original text
}

// Matcher matches canonical tokens against one release snapshot. Terms only
// match on whole-token boundaries: single-word terms must equal a token,
// multi-word phrases must match a contiguous token run. Immutable and safe
// for concurrent use.
type Matcher struct {
	version  string
	snapshot *Snapshot
	// byFirstToken indexes compiled terms by their leading token.
	byFirstToken map[string][]compiledTerm
}

type compiledTerm struct {
	entry  Entry
	tokens []string
}

// NewMatcher compiles the active entries of a snapshot. Entries whose term
// normalizes to nothing are skipped: they can never match.
func NewMatcher(snapshot *Snapshot) *Matcher {
	m := &Matcher{
		version:      snapshot.Version,
		snapshot:     snapshot,
		byFirstToken: make(map[string][]compiledTerm),
	}
	for _, entry := range snapshot.ActiveEntries() {
		termTokens := normalize.Normalize(entry.Term).TokenTexts()
		if len(termTokens) == 0 {
			continue
		}
		first := termTokens[0]
		m.byFirstToken[first] = append(m.byFirstToken[first], compiledTerm{
			entry:  entry,
			tokens: termTokens,
		})
	}
	return m
}

// Version is the release version this matcher was compiled from.
func (m *Matcher) Version() string {
	return m.version
}

// Snapshot returns the release snapshot this matcher was compiled from.
func (m *Matcher) Snapshot() *Snapshot {
	return m.snapshot
}

// Match scans the normalized tokens and returns all hits ordered by first
// occurrence in the text. Identical text and identical snapshot always yield
// the identical match list. Each entry is reported once, at its first
// occurrence.
func (m *Matcher) Match(norm *normalize.Result) []Match {
	tokens := norm.Tokens
	var matches []Match
	seen := make(map[string]struct{})
	for i := range tokens {
		candidates, ok := m.byFirstToken[tokens[i].Text]
		if !ok {
			continue
		}
		for _, cand := range candidates {
			if !phraseAt(tokens, i, cand.tokens) {
				continue
			}
			key := entryKey(cand.entry)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			last := i + len(cand.tokens) - 1
			matches = append(matches, Match{
				Entry:      cand.entry,
				TokenIndex: i,
				Start:      tokens[i].Start,
				End:        tokens[last].End,
			})
		}
	}
	return matches
}

// phraseAt reports whether the term tokens occur contiguously at position i.
func phraseAt(tokens []normalize.Token, i int, term []string) bool {
	if i+len(term) > len(tokens) {
		return false
	}
	for j, t := range term {
		if tokens[i+j].Text != t {
			return false
		}
	}
	return true
}

// entryKey deduplicates repeated identical entries within a decision, the
// same way duplicate rows are collapsed before evidence is emitted.
func entryKey(e Entry) string {
	return e.Term + "\x00" + string(e.Action) + "\x00" + string(e.Label) + "\x00" + e.ReasonCode + "\x00" + e.Lang
}

// EvidenceFor converts a match into its audit evidence item.
func EvidenceFor(match Match) moderation.EvidenceItem {
	return moderation.EvidenceItem{
		Type:     moderation.EvidenceLexicon,
		Match:    match.Entry.Term,
		Severity: match.Entry.Severity,
		Lang:     match.Entry.Lang,
	}
}
