package lexicon

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync/atomic"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Thelastpoet/Sentinel/pkg/observability/logging"
)

// Repository provides the active release snapshot. Owned by the external
// release-lifecycle subsystem; the decision pipeline only reads.
type Repository interface {
	FetchActive(ctx context.Context) (*Snapshot, error)
}

// FileRepository reads a release snapshot from a JSON seed file.
type FileRepository struct {
	Path string
}

type seedFile struct {
	Version string  `json:"version"`
	Entries []Entry `json:"entries"`
}

// FetchActive loads and parses the seed file.
func (r *FileRepository) FetchActive(_ context.Context) (*Snapshot, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to read lexicon seed: %w", err)
	}
	var seed seedFile
	if err := json.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon seed: %w", err)
	}
	if seed.Version == "" {
		return nil, fmt.Errorf("lexicon seed %s has no version", r.Path)
	}
	return &Snapshot{Version: seed.Version, Entries: seed.Entries}, nil
}

// PostgresRepository reads the active release from the lexicon tables.
type PostgresRepository struct {
	Pool *pgxpool.Pool
}

// FetchActive loads the single active release and its entries. At most one
// release may be active; more than one is a data fault and fails loudly
// rather than mixing entries from two releases.
func (r *PostgresRepository) FetchActive(ctx context.Context) (*Snapshot, error) {
	rows, err := r.Pool.Query(ctx,
		`SELECT version FROM lexicon_releases WHERE status = 'active'`)
	if err != nil {
		return nil, fmt.Errorf("failed to query active release: %w", err)
	}
	var versions []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan release version: %w", err)
		}
		versions = append(versions, v)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read active release: %w", err)
	}
	if len(versions) == 0 {
		return nil, fmt.Errorf("no active lexicon release")
	}
	if len(versions) > 1 {
		return nil, fmt.Errorf("expected exactly one active lexicon release, found %d", len(versions))
	}
	version := versions[0]

	entryRows, err := r.Pool.Query(ctx,
		`SELECT id, term, action, label, reason_code, severity, lang, status
		   FROM lexicon_entries
		  WHERE lexicon_version = $1 AND status = 'active'
		  ORDER BY id ASC`, version)
	if err != nil {
		return nil, fmt.Errorf("failed to query lexicon entries: %w", err)
	}
	defer entryRows.Close()

	var entries []Entry
	for entryRows.Next() {
		var e Entry
		var id int64
		if err := entryRows.Scan(&id, &e.Term, &e.Action, &e.Label, &e.ReasonCode, &e.Severity, &e.Lang, &e.Status); err != nil {
			return nil, fmt.Errorf("failed to scan lexicon entry: %w", err)
		}
		e.ID = fmt.Sprintf("%d", id)
		entries = append(entries, e)
	}
	if err := entryRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read lexicon entries: %w", err)
	}
	return &Snapshot{Version: version, Entries: entries}, nil
}

// FallbackRepository tries a primary repository and falls back to a
// secondary one when the primary is unreachable, so a database outage
// degrades to the seeded lexicon instead of failing decisions.
type FallbackRepository struct {
	Primary  Repository
	Fallback Repository
}

func (r *FallbackRepository) FetchActive(ctx context.Context) (*Snapshot, error) {
	snapshot, err := r.Primary.FetchActive(ctx)
	if err == nil {
		return snapshot, nil
	}
	logging.Warnf("primary lexicon repository unavailable, using fallback: %v", err)
	return r.Fallback.FetchActive(ctx)
}

// Holder publishes the compiled matcher for the active release. Readers get
// a consistent matcher for the whole decision; activation builds the new
// matcher first and then swaps the pointer.
type Holder struct {
	current atomic.Pointer[Matcher]
}

// Activate compiles and publishes a new snapshot.
func (h *Holder) Activate(snapshot *Snapshot) {
	matcher := NewMatcher(snapshot)
	h.current.Store(matcher)
	logging.Infof("lexicon release %s activated with %d entries", snapshot.Version, len(snapshot.Entries))
}

// Matcher returns the currently active matcher, or nil before first
// activation.
func (h *Holder) Matcher() *Matcher {
	return h.current.Load()
}
