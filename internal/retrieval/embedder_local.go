package retrieval

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"strings"
)

// LocalEmbedder is a deterministic, dependency-free fallback used when no
// embeddings provider is configured (EMBEDDINGS_PROVIDER=local, the
// default per spec.md §6). It hashes each lowercased word into one signed
// bucket of a fixed-width vector and L2-normalizes it, which is not semantically
// meaningful but satisfies Embed's determinism contract so the rest of the
// hybrid-retrieval pipeline (cosine similarity, progressive thresholds) is
// exercisable without an external API key. No example repo ships a local
// embedding library, so this is a deliberate standard-library component.
type LocalEmbedder struct {
	dim int
}

// NewLocalEmbedder builds a LocalEmbedder producing vectors of length dim.
func NewLocalEmbedder(dim int) *LocalEmbedder {
	if dim <= 0 {
		dim = 384
	}
	return &LocalEmbedder{dim: dim}
}

func (e *LocalEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	vec := make([]float32, e.dim)
	words := strings.Fields(strings.ToLower(text))
	for _, w := range words {
		sum := sha256.Sum256([]byte(w))
		idx := binary.BigEndian.Uint32(sum[:4]) % uint32(e.dim)
		sign := float32(1)
		if sum[4]%2 == 0 {
			sign = -1
		}
		vec[idx] += sign
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm == 0 {
		return vec, nil
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		vec[i] = float32(float64(v) / norm)
	}
	return vec, nil
}
