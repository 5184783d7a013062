// Package lexicon holds the versioned term lexicon and its boundary-aware
// matcher. Exactly one release is active at a time; the active snapshot is
// read-only and swapped atomically on release activation so in-flight
// decisions never observe a half-updated lexicon.
package lexicon

import (
	"time"

	"github.com/Thelastpoet/Sentinel/pkg/moderation"
)

// EntryStatus tracks release lifecycle state for an entry.
type EntryStatus string

const (
	StatusActive     EntryStatus = "active"
	StatusDeprecated EntryStatus = "deprecated"
)

// Entry is one matchable lexicon term. Owned by the release lifecycle; the
// matcher only ever reads it.
type Entry struct {
	ID         string            `json:"id,omitempty" yaml:"id,omitempty"`
	Term       string            `json:"term" yaml:"term"`
	Action     moderation.Action `json:"action" yaml:"action"`
	Label      moderation.Label  `json:"label" yaml:"label"`
	ReasonCode string            `json:"reason_code" yaml:"reason_code"`
	Severity   int               `json:"severity" yaml:"severity"`
	Lang       string            `json:"lang" yaml:"lang"`
	Status     EntryStatus       `json:"status,omitempty" yaml:"status,omitempty"`
	FirstSeen  time.Time         `json:"first_seen,omitempty" yaml:"first_seen,omitempty"`
	LastSeen   time.Time         `json:"last_seen,omitempty" yaml:"last_seen,omitempty"`
}

// Snapshot is the read-only view of the single active release.
type Snapshot struct {
	Version string  `json:"version" yaml:"version"`
	Entries []Entry `json:"entries" yaml:"entries"`
}

// ActiveEntries returns the entries eligible for matching. Deprecated
// entries stay in the snapshot for audit but never match.
func (s *Snapshot) ActiveEntries() []Entry {
	out := make([]Entry, 0, len(s.Entries))
	for _, e := range s.Entries {
		if e.Status == "" || e.Status == StatusActive {
			out = append(out, e)
		}
	}
	return out
}
