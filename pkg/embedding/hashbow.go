package embedding

import (
	"context"
	"encoding/binary"
	"math"

	"golang.org/x/crypto/blake2b"

	"github.com/Thelastpoet/Sentinel/pkg/normalize"
)

const (
	// HashBOWName identifies the baseline provider in the registry and in
	// stored entry embeddings.
	HashBOWName = "hash-bow"
	// HashBOWVersion is the model identifier recorded with every vector.
	HashBOWVersion = "hash-bow-v1"
	// HashBOWDimension is the fixed projection width.
	HashBOWDimension = 64
)

func init() {
	Register(&HashBOW{})
}

// HashBOW is the deterministic baseline: a signed feature-hashing projection
// of token, bigram and character-trigram features, normalized to unit
// length. Identical text always embeds to the identical vector.
type HashBOW struct{}

func (h *HashBOW) Name() string    { return HashBOWName }
func (h *HashBOW) Version() string { return HashBOWVersion }
func (h *HashBOW) Dimension() int  { return HashBOWDimension }

type feature struct {
	key    string
	weight float32
}

func features(text string) []feature {
	tokens := normalize.Normalize(text).TokenTexts()
	if len(tokens) == 0 {
		return nil
	}
	var out []feature
	for _, tok := range tokens {
		out = append(out, feature{key: "tok:" + tok, weight: 1.0})
	}
	for i := 0; i+1 < len(tokens); i++ {
		out = append(out, feature{key: "bigram:" + tokens[i] + "_" + tokens[i+1], weight: 1.2})
	}
	for _, tok := range tokens {
		compact := stripApostrophes(tok)
		runes := []rune(compact)
		if len(runes) < 3 {
			continue
		}
		for start := 0; start+3 <= len(runes); start++ {
			out = append(out, feature{key: "tri:" + string(runes[start:start+3]), weight: 0.5})
		}
	}
	return out
}

func stripApostrophes(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r != '\'' {
			out = append(out, r)
		}
	}
	return string(out)
}

// Embed implements Provider. It cannot fail and ignores the context: the
// projection is pure computation.
func (h *HashBOW) Embed(_ context.Context, text string) ([]float32, error) {
	vector := make([]float32, HashBOWDimension)
	feats := features(text)
	if len(feats) == 0 {
		return vector, nil
	}
	for _, f := range feats {
		// Signed feature hashing keeps memory and latency bounded at a
		// fixed dimension. Collisions are tolerated: the vector path is
		// REVIEW-only and threshold-gated before it has policy impact.
		digest := blake2b.Sum256([]byte(f.key))
		index := binary.BigEndian.Uint16(digest[0:2]) % HashBOWDimension
		sign := float32(1.0)
		if digest[2]%2 == 1 {
			sign = -1.0
		}
		vector[index] += sign * f.weight
	}
	var norm float64
	for _, v := range vector {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return make([]float32, HashBOWDimension), nil
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vector {
		vector[i] *= scale
	}
	return vector, nil
}
