// Package normalize canonicalizes request text before matching.
//
// The canonical form applies NFKC normalization, lower-casing and apostrophe
// folding, then collapses separator-insertion evasion (punctuation or spaces
// injected between single letters of a word, e.g. "k.i.l.l"). Token offsets
// are mapped back to the original text so language spans and evidence refer
// to what the user actually wrote.
package normalize

import (
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Token is one word-like unit of the canonical text with its span in the
// original input (byte offsets).
type Token struct {
	Text  string // canonical form (lower-cased, NFKC, evasion-collapsed)
	Start int    // byte offset into the original text
	End   int    // byte offset into the original text (exclusive)
}

// Result is the output of Normalize. Deterministic for identical input.
type Result struct {
	// Canonical is the canonical text: NFKC, lower-cased, apostrophes folded,
	// evasion-collapsed tokens joined by single spaces.
	Canonical string
	// Tokens in order of occurrence.
	Tokens []Token
}

// TokenTexts returns just the canonical token strings.
func (r *Result) TokenTexts() []string {
	out := make([]string, len(r.Tokens))
	for i, tok := range r.Tokens {
		out[i] = tok.Text
	}
	return out
}

// isWordRune reports whether r belongs inside a token. Mirrors the term
// tokenization used by the lexicon matcher so boundaries agree.
func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\''
}

// foldRune lower-cases and folds typographic apostrophes.
func foldRune(r rune) rune {
	if r == '’' { // right single quotation mark
		return '\''
	}
	return unicode.ToLower(r)
}

type rawToken struct {
	text  string
	start int
	end   int
}

// Normalize canonicalizes text. It never fails: malformed input is rejected
// by request validation before this stage runs.
func Normalize(text string) *Result {
	nfkc, segs := nfkcWithMap(text)

	src := nfkc
	var raw []rawToken
	var cur strings.Builder
	curStart := -1
	lastEnd := 0
	flush := func(end int) {
		if cur.Len() == 0 {
			return
		}
		raw = append(raw, rawToken{text: cur.String(), start: curStart, end: end})
		cur.Reset()
		curStart = -1
	}
	for i, r := range src {
		if isWordRune(r) {
			if curStart < 0 {
				curStart = i
			}
			cur.WriteRune(foldRune(r))
			lastEnd = i + utf8.RuneLen(r)
			continue
		}
		flush(lastEnd)
	}
	flush(lastEnd)

	tokens := collapseEvasion(raw)

	texts := make([]string, len(tokens))
	out := make([]Token, len(tokens))
	for i, tok := range tokens {
		texts[i] = tok.text
		out[i] = Token{
			Text:  tok.text,
			Start: mapStart(segs, tok.start),
			End:   mapEnd(segs, tok.end),
		}
	}
	return &Result{
		Canonical: strings.Join(texts, " "),
		Tokens:    out,
	}
}

// nfkcSegment records how one normalization segment of the source maps into
// the NFKC output, so token offsets can be translated back to the original
// text even when NFKC changes byte lengths.
type nfkcSegment struct {
	srcStart, srcEnd int
	dstStart, dstEnd int
}

// nfkcWithMap normalizes text segment by segment, recording the source range
// behind every output range.
func nfkcWithMap(text string) (string, []nfkcSegment) {
	var b strings.Builder
	var segs []nfkcSegment
	for off := 0; off < len(text); {
		n := norm.NFKC.NextBoundaryInString(text[off:], true)
		if n <= 0 {
			n = len(text) - off
		}
		dst := norm.NFKC.String(text[off : off+n])
		segs = append(segs, nfkcSegment{
			srcStart: off,
			srcEnd:   off + n,
			dstStart: b.Len(),
			dstEnd:   b.Len() + len(dst),
		})
		b.WriteString(dst)
		off += n
	}
	return b.String(), segs
}

// mapStart translates an NFKC offset at the start of a token back to the
// original text. An offset inside a length-changing segment resolves to the
// segment's source start so the token still points at what the user wrote.
func mapStart(segs []nfkcSegment, off int) int {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].dstEnd > off })
	if i == len(segs) {
		if len(segs) == 0 {
			return 0
		}
		return segs[len(segs)-1].srcEnd
	}
	s := segs[i]
	if s.dstEnd-s.dstStart == s.srcEnd-s.srcStart {
		return s.srcStart + (off - s.dstStart)
	}
	return s.srcStart
}

// mapEnd translates an exclusive NFKC end offset back to the original text.
// An offset inside a length-changing segment resolves to the segment's
// source end.
func mapEnd(segs []nfkcSegment, off int) int {
	i := sort.Search(len(segs), func(i int) bool { return segs[i].dstEnd >= off })
	if i == len(segs) {
		if len(segs) == 0 {
			return 0
		}
		return segs[len(segs)-1].srcEnd
	}
	s := segs[i]
	if s.dstEnd-s.dstStart == s.srcEnd-s.srcStart {
		return s.srcStart + (off - s.dstStart)
	}
	return s.srcEnd
}

// collapseEvasion merges runs of single-rune tokens separated by single
// non-word characters back into one token. A run must be at least three
// letters long ("k.i.l.l" collapses, "a b" does not), and each gap between
// the fragments must be exactly one byte wide so legitimate one-letter words
// in normal prose are left alone.
func collapseEvasion(tokens []rawToken) []rawToken {
	var out []rawToken
	i := 0
	for i < len(tokens) {
		j := i
		for j+1 < len(tokens) &&
			isSingleRune(tokens[j].text) &&
			isSingleRune(tokens[j+1].text) &&
			tokens[j+1].start-tokens[j].end == 1 {
			j++
		}
		if j-i+1 >= 3 {
			var merged strings.Builder
			for k := i; k <= j; k++ {
				merged.WriteString(tokens[k].text)
			}
			out = append(out, rawToken{
				text:  merged.String(),
				start: tokens[i].start,
				end:   tokens[j].end,
			})
			i = j + 1
			continue
		}
		out = append(out, tokens[i])
		i++
	}
	return out
}

func isSingleRune(s string) bool {
	return utf8.RuneCountInString(s) == 1
}
