package retrieval

import (
	"context"
	"math"
	"sort"

	"github.com/oss-mcp/research-engine/internal/store"
)

// progressiveThresholds is the ordered list of decreasing similarity cutoffs
// tried until enough candidates are found, per spec.md §4.6 stage 2.
var progressiveThresholds = []float64{0.75, 0.70, 0.65, 0.60}

// Embedder produces a dense vector for a piece of text. Implementations
// must be pure and deterministic (same input -> same output), per spec.md
// §6 "Embedder" external interface.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorCandidate is one scored report from dense vector search.
type VectorCandidate struct {
	ReportID int64
	Score    float64 // cosine similarity, higher is more similar
}

// DenseSearch embeds the query and runs brute-force cosine similarity
// search over every report embedding, applying progressive threshold
// relaxation (spec.md §4.6 stage 2): starting at 0.75, retrying at 0.70,
// 0.65, then 0.60 until at least minResults candidates are found.
//
// There is no native vector-index extension in this module's SQLite build,
// so this runs brute-force over an in-memory snapshot rather than an
// on-disk ANN index (see store.AllReportEmbeddings); determinism is
// preserved at the cost of sub-linear search time, an explicit tradeoff
// documented as an Open Question resolution.
func DenseSearch(ctx context.Context, st *store.Store, embedder Embedder, query string, minResults int) ([]VectorCandidate, error) {
	vec, err := embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	embeddings, err := st.AllReportEmbeddings(ctx)
	if err != nil {
		return nil, err
	}
	if len(embeddings) == 0 {
		return nil, nil
	}

	all := make([]VectorCandidate, 0, len(embeddings))
	for id, emb := range embeddings {
		all = append(all, VectorCandidate{ReportID: id, Score: CosineSimilarity(vec, emb)})
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].Score != all[j].Score {
			return all[i].Score > all[j].Score
		}
		return all[i].ReportID < all[j].ReportID
	})

	var out []VectorCandidate
	for _, threshold := range progressiveThresholds {
		out = out[:0]
		for _, c := range all {
			if c.Score >= threshold {
				out = append(out, c)
			}
		}
		if len(out) >= minResults {
			break
		}
	}
	if len(out) > candidateLimit {
		out = out[:candidateLimit]
	}
	return out, nil
}

// CosineSimilarity computes the cosine similarity of two equal-length
// vectors, adapted from nico-hyperjump-sagasu's InnerProduct/L2Norm helpers
// (there: "for normalized vectors equals cosine similarity"); this version
// normalizes explicitly so callers need not pre-normalize embeddings.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
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
