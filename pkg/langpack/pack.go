// Package langpack loads supplemental per-language lexicon packs. Packs are
// advisory vocabulary shipped between core releases: they match after the
// core lexicon and may only ever contribute REVIEW-level evidence, so a pack
// rollout can widen coverage but never widen enforcement.
package langpack

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

var packVersionPattern = regexp.MustCompile(`^pack-[a-z0-9-]+-\d+\.\d+$`)

// Pack is one language's supplemental lexicon as it appears in the registry
// file.
type Pack struct {
	Language     string            `yaml:"language" json:"language"`
	Version      string            `yaml:"pack_version" json:"pack_version"`
	Priority     int               `yaml:"priority" json:"priority"`
	Replacements map[string]string `yaml:"replacements,omitempty" json:"replacements,omitempty"`
	Entries      []lexicon.Entry   `yaml:"entries" json:"entries"`
}

// Registry is the on-disk pack registry document.
type Registry struct {
	Packs []Pack `yaml:"packs" json:"packs"`
}

// Matcher matches one compiled pack. Immutable; safe for concurrent use.
type Matcher struct {
	language string
	version  string
	priority int
	// replacements are applied in sorted-key order so rewriting is
	// deterministic even when rules overlap.
	replacements []replacement
	matcher      *lexicon.Matcher
}

type replacement struct {
	from, to string
}

// Set holds all loaded pack matchers in priority order.
type Set struct {
	matchers []*Matcher
}

// Load reads and compiles the pack registry. A missing registry file is not
// an error: packs are optional and the decision path must work without them.
// A present but invalid registry is fatal, the same as any other config.
func Load(path string) (*Set, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		if os.IsNotExist(err) {
			logging.Infof("No language pack registry at %s, continuing without packs", path)
			return &Set{}, nil
		}
		return nil, fmt.Errorf("failed to read pack registry %s: %w", path, err)
	}
	var registry Registry
	if err := yaml.Unmarshal(data, &registry); err != nil {
		return nil, fmt.Errorf("failed to parse pack registry: %w", err)
	}
	return Compile(&registry)
}

// Compile validates a registry and builds its matchers.
func Compile(registry *Registry) (*Set, error) {
	seenLangs := make(map[string]struct{})
	seenVersions := make(map[string]struct{})
	set := &Set{}
	for _, pack := range registry.Packs {
		lang := strings.ToLower(strings.TrimSpace(pack.Language))
		if lang == "" {
			return nil, fmt.Errorf("pack registry: language is required")
		}
		if !packVersionPattern.MatchString(pack.Version) {
			return nil, fmt.Errorf("pack registry: invalid pack_version %q, expected pack-<lang>-<major.minor>", pack.Version)
		}
		if _, dup := seenLangs[lang]; dup {
			return nil, fmt.Errorf("pack registry: duplicate language %q", lang)
		}
		if _, dup := seenVersions[pack.Version]; dup {
			return nil, fmt.Errorf("pack registry: duplicate pack_version %q", pack.Version)
		}
		seenLangs[lang] = struct{}{}
		seenVersions[pack.Version] = struct{}{}

		matcher, err := compilePack(lang, pack)
		if err != nil {
			return nil, err
		}
		set.matchers = append(set.matchers, matcher)
	}
	sort.SliceStable(set.matchers, func(i, j int) bool {
		return set.matchers[i].priority < set.matchers[j].priority
	})
	if len(set.matchers) > 0 {
		logging.Infof("Compiled %d language pack(s)", len(set.matchers))
	}
	return set, nil
}

func compilePack(lang string, pack Pack) (*Matcher, error) {
	if len(pack.Entries) == 0 {
		return nil, fmt.Errorf("pack %s: at least one entry is required", pack.Version)
	}
	entries := make([]lexicon.Entry, 0, len(pack.Entries))
	for _, e := range pack.Entries {
		if e.Action != moderation.ActionReview {
			return nil, fmt.Errorf("pack %s: entry %q has action %s, packs are REVIEW-only",
				pack.Version, e.Term, e.Action)
		}
		if _, ok := moderation.KnownLabels[e.Label]; !ok {
			return nil, fmt.Errorf("pack %s: entry %q has unknown label %q", pack.Version, e.Term, e.Label)
		}
		if e.Severity < 1 || e.Severity > 3 {
			return nil, fmt.Errorf("pack %s: entry %q has severity %d outside [1,3]", pack.Version, e.Term, e.Severity)
		}
		e.Lang = lang
		entries = append(entries, e)
	}
	replacements := make([]replacement, 0, len(pack.Replacements))
	for from, to := range pack.Replacements {
		from = strings.ToLower(strings.TrimSpace(from))
		if from == "" {
			continue
		}
		replacements = append(replacements, replacement{from: from, to: strings.ToLower(strings.TrimSpace(to))})
	}
	sort.Slice(replacements, func(i, j int) bool { return replacements[i].from < replacements[j].from })
	snapshot := &lexicon.Snapshot{Version: pack.Version, Entries: entries}
	return &Matcher{
		language:     lang,
		version:      pack.Version,
		priority:     pack.Priority,
		replacements: replacements,
		matcher:      lexicon.NewMatcher(snapshot),
	}, nil
}

// Language is the pack's language code.
func (m *Matcher) Language() string { return m.language }

// Version is the pack's version string.
func (m *Matcher) Version() string { return m.version }

// Match applies the pack's replacement table to the canonical text and runs
// the boundary-aware matcher over the result. Offsets in the returned matches
// refer to the rewritten text, so callers use them for ordering only.
func (m *Matcher) Match(norm *normalize.Result) []lexicon.Match {
	canonical := norm.Canonical
	for _, r := range m.replacements {
		canonical = strings.ReplaceAll(canonical, r.from, r.to)
	}
	return m.matcher.Match(normalize.Normalize(canonical))
}

// Match runs every pack in priority order and concatenates the matches.
func (s *Set) Match(norm *normalize.Result) []lexicon.Match {
	var out []lexicon.Match
	for _, m := range s.matchers {
		out = append(out, m.Match(norm)...)
	}
	return out
}

// Versions maps pack language to pack version for decision provenance.
func (s *Set) Versions() map[string]string {
	out := make(map[string]string, len(s.matchers))
	for _, m := range s.matchers {
		out[m.language] = m.version
	}
	return out
}

// Empty reports whether no packs are loaded.
func (s *Set) Empty() bool { return len(s.matchers) == 0 }
