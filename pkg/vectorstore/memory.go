package vectorstore

import (
	"context"
	"fmt"
	"math"

	"github.com/Thelastpoet/Sentinel/pkg/embedding"
	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
)

// MemoryStore holds precomputed embeddings for one release in process
// memory. Built once at release activation and read-only afterwards.
type MemoryStore struct {
	version string
	items   []memoryItem
}

type memoryItem struct {
	entry  lexicon.Entry
	id     string
	vector []float32
}

// NewMemoryStore embeds the REVIEW-action entries of a snapshot with the
// given provider. Entries that embed to the zero vector are skipped: they
// can never clear a positive threshold.
func NewMemoryStore(ctx context.Context, snapshot *lexicon.Snapshot, provider embedding.Provider) (*MemoryStore, error) {
	store := &MemoryStore{version: snapshot.Version}
	for i, entry := range snapshot.ActiveEntries() {
		if entry.Action != "REVIEW" {
			continue
		}
		vector, err := provider.Embed(ctx, entry.Term)
		if err != nil {
			return nil, fmt.Errorf("failed to embed lexicon term %q: %w", entry.Term, err)
		}
		if isZero(vector) {
			continue
		}
		id := entry.ID
		if id == "" {
			id = fmt.Sprintf("%s:%d", snapshot.Version, i)
		}
		store.items = append(store.items, memoryItem{entry: entry, id: id, vector: vector})
	}
	return store, nil
}

// Search implements Store with a linear cosine scan. Ties break toward the
// earlier entry so results are deterministic.
func (s *MemoryStore) Search(_ context.Context, version string, query []float32, minSimilarity float64) (*Match, error) {
	if version != s.version {
		return nil, fmt.Errorf("vector store holds release %s, decision wants %s", s.version, version)
	}
	if isZero(query) {
		return nil, nil
	}
	best := -1
	bestSim := 0.0
	for i := range s.items {
		sim := cosine(query, s.items[i].vector)
		if math.IsNaN(sim) || math.IsInf(sim, 0) {
			continue
		}
		if sim > bestSim || best == -1 {
			best = i
			bestSim = sim
		}
	}
	if best == -1 {
		return nil, nil
	}
	bestSim = clamp01(bestSim)
	if bestSim < minSimilarity {
		return nil, nil
	}
	item := s.items[best]
	return &Match{Entry: item.entry, MatchID: item.id, Similarity: bestSim}, nil
}

func isZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
