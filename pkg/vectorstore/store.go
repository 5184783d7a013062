// Package vectorstore performs nearest-neighbor cosine search over the
// active release's entry embeddings. Only REVIEW-action entries are
// searchable: the semantic path is advisory and must never be able to
// surface a BLOCK entry.
package vectorstore

import (
	"context"
	"math"

	"github.com/Thelastpoet/Sentinel/pkg/lexicon"
)

// Match is the best candidate at or above the effective threshold.
type Match struct {
	Entry      lexicon.Entry
	MatchID    string
	Similarity float64
}

// Store is the search contract consumed by the semantic matcher. A store
// returns (nil, nil) when no candidate clears the threshold; errors mean the
// backend failed and the stage degrades to no evidence.
type Store interface {
	// Search returns the single best match for the query vector among
	// entries of the given release, or nil when none reaches minSimilarity.
	Search(ctx context.Context, version string, query []float32, minSimilarity float64) (*Match, error)
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
