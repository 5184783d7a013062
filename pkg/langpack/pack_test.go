package langpack

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
	"github.com/Thelastpoet/Sentinel/pkg/moderation"
	"github.com/Thelastpoet/Sentinel/pkg/normalize"
)

func packEntry(term string) lexicon.Entry {
	return lexicon.Entry{
		ID:         term,
		Term:       term,
		Action:     moderation.ActionReview,
		Label:      moderation.LabelIncitementViolence,
		ReasonCode: "R_INCITE_CALL_TO_HARM",
		Severity:   2,
	}
}

func swahiliPack() Pack {
	return Pack{
		Language: "sw",
		Version:  "pack-sw-1.0",
		Priority: 1,
		Replacements: map[string]string{
			"m4doadoa": "madoadoa",
		},
		Entries: []lexicon.Entry{packEntry("wachome"), packEntry("madoadoa")},
	}
}

func TestCompileRejectsBlockEntries(t *testing.T) {
	pack := swahiliPack()
	pack.Entries[0].Action = moderation.ActionBlock
	_, err := Compile(&Registry{Packs: []Pack{pack}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "REVIEW-only")
}

func TestCompileRejectsBadVersions(t *testing.T) {
	for _, version := range []string{"", "sw-1.0", "pack-sw-1", "pack-SW-1.0", "pack-sw-1.0.0"} {
		pack := swahiliPack()
		pack.Version = version
		_, err := Compile(&Registry{Packs: []Pack{pack}})
		assert.Error(t, err, "version=%q", version)
	}
}

func TestCompileRejectsDuplicates(t *testing.T) {
	sameLang := swahiliPack()
	sameLang.Version = "pack-sw-2.0"
	_, err := Compile(&Registry{Packs: []Pack{swahiliPack(), sameLang}})
	assert.Error(t, err)

	sameVersion := swahiliPack()
	sameVersion.Language = "sh"
	_, err = Compile(&Registry{Packs: []Pack{swahiliPack(), sameVersion}})
	assert.Error(t, err)
}

func TestCompileRejectsEmptyAndInvalidEntries(t *testing.T) {
	empty := swahiliPack()
	empty.Entries = nil
	_, err := Compile(&Registry{Packs: []Pack{empty}})
	assert.Error(t, err)

	badLabel := swahiliPack()
	badLabel.Entries[0].Label = "NOT_A_LABEL"
	_, err = Compile(&Registry{Packs: []Pack{badLabel}})
	assert.Error(t, err)

	badSeverity := swahiliPack()
	badSeverity.Entries[0].Severity = 4
	_, err = Compile(&Registry{Packs: []Pack{badSeverity}})
	assert.Error(t, err)
}

func TestCompileForcesEntryLanguage(t *testing.T) {
	pack := swahiliPack()
	pack.Entries[0].Lang = "en"
	set, err := Compile(&Registry{Packs: []Pack{pack}})
	require.NoError(t, err)
	matches := set.Match(normalize.Normalize("wachome sasa"))
	require.Len(t, matches, 1)
	assert.Equal(t, "sw", matches[0].Entry.Lang)
}

func TestMatchAppliesReplacements(t *testing.T) {
	set, err := Compile(&Registry{Packs: []Pack{swahiliPack()}})
	require.NoError(t, err)

	matches := set.Match(normalize.Normalize("hao ni M4DOADOA kabisa"))
	require.Len(t, matches, 1)
	assert.Equal(t, "madoadoa", matches[0].Entry.Term)
}

func TestMatchRespectsTokenBoundaries(t *testing.T) {
	set, err := Compile(&Registry{Packs: []Pack{swahiliPack()}})
	require.NoError(t, err)
	assert.Empty(t, set.Match(normalize.Normalize("wachomeka chakula")))
}

func TestSetMatchesInPriorityOrder(t *testing.T) {
	sheng := Pack{
		Language: "sh",
		Version:  "pack-sh-1.0",
		Priority: 0,
		Entries:  []lexicon.Entry{packEntry("mbogi")},
	}
	set, err := Compile(&Registry{Packs: []Pack{swahiliPack(), sheng}})
	require.NoError(t, err)

	matches := set.Match(normalize.Normalize("wachome mbogi"))
	require.Len(t, matches, 2)
	assert.Equal(t, "sh", matches[0].Entry.Lang, "lower priority value matches first")
	assert.Equal(t, "sw", matches[1].Entry.Lang)
}

func TestVersions(t *testing.T) {
	set, err := Compile(&Registry{Packs: []Pack{swahiliPack()}})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"sw": "pack-sw-1.0"}, set.Versions())
	assert.False(t, set.Empty())
}

func TestLoadMissingRegistryIsEmptySet(t *testing.T) {
	set, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.True(t, set.Empty())
	assert.Empty(t, set.Match(normalize.Normalize("wachome")))
}

func TestLoadInvalidRegistryFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte("packs: [not a pack"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadRegistryFile(t *testing.T) {
	doc := `packs:
  - language: sw
    pack_version: pack-sw-1.0
    priority: 1
    replacements:
      m4doadoa: madoadoa
    entries:
      - id: sw-1
        term: wachome
        action: REVIEW
        label: INCITEMENT_VIOLENCE
        reason_code: R_INCITE_CALL_TO_HARM
        severity: 2
`
	path := filepath.Join(t.TempDir(), "registry.yaml")
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))

	set, err := Load(path)
	require.NoError(t, err)
	matches := set.Match(normalize.Normalize("WACHOME hao!"))
	require.Len(t, matches, 1)
	assert.Equal(t, "wachome", matches[0].Entry.Term)
}
