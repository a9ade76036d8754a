package retrieval

import (
	"fmt"
	"sort"
)

const (
	bm25Weight  = 0.7
	denseWeight = 0.3

	// reportDocPrefix namespaces BM25 doc ids that come from indexed report
	// text, so dense candidates (keyed by reports.id) and lexical candidates
	// (keyed by doc_index.id) land on the same item id during fusion.
	reportDocPrefix = "report:"
)

// reportItemID is the fusion item id for a report, shared between the BM25
// doc_index row written when a report is indexed (see retrieve.go) and the
// dense candidate produced from reports.embedding.
func reportItemID(reportID int64) string {
	return fmt.Sprintf("%s%d", reportDocPrefix, reportID)
}

// FusedResult is one deduplicated candidate after weighted fusion, per
// spec.md §4.6 stage 4.
type FusedResult struct {
	ItemID     string
	FusedScore float64
	GraphMatch bool
}

// Fuse combines BM25 and dense candidates via the fixed weighted sum
// fused_score = 0.7*normalize(bm25) + 0.3*normalize(dense), where
// normalization is min-max within each candidate set. Results are
// deduplicated by item id (keeping the higher fused score), sorted by
// fused score descending, ties broken by graph-match presence then by
// lower id, and truncated to k — matching the deterministic ordering
// invariant spec.md §4.6 requires ("identical inputs... always yield an
// identical ordered list").
func Fuse(bm25 []BM25Candidate, dense []VectorCandidate, graphMatchIDs map[string]bool, k int) []FusedResult {
	bm25Norm := normalizeBM25(bm25)
	denseNorm := normalizeDense(dense)

	scores := make(map[string]float64)
	for id, n := range bm25Norm {
		scores[id] += bm25Weight * n
	}
	for id, n := range denseNorm {
		scores[id] += denseWeight * n
	}

	out := make([]FusedResult, 0, len(scores))
	for id, score := range scores {
		out = append(out, FusedResult{ItemID: id, FusedScore: score, GraphMatch: graphMatchIDs[id]})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].FusedScore != out[j].FusedScore {
			return out[i].FusedScore > out[j].FusedScore
		}
		if out[i].GraphMatch != out[j].GraphMatch {
			return out[i].GraphMatch
		}
		return out[i].ItemID < out[j].ItemID
	})
	if k > 0 && len(out) > k {
		out = out[:k]
	}
	return out
}

func normalizeBM25(candidates []BM25Candidate) map[string]float64 {
	if len(candidates) == 0 {
		return nil
	}
	min, max := candidates[0].Score, candidates[0].Score
	for _, c := range candidates {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		out[c.DocID] = minMaxNormalize(c.Score, min, max)
	}
	return out
}

func normalizeDense(candidates []VectorCandidate) map[string]float64 {
	if len(candidates) == 0 {
		return nil
	}
	min, max := candidates[0].Score, candidates[0].Score
	for _, c := range candidates {
		if c.Score < min {
			min = c.Score
		}
		if c.Score > max {
			max = c.Score
		}
	}
	out := make(map[string]float64, len(candidates))
	for _, c := range candidates {
		id := reportItemID(c.ReportID)
		out[id] = minMaxNormalize(c.Score, min, max)
	}
	return out
}

func minMaxNormalize(v, min, max float64) float64 {
	if max == min {
		return 1
	}
	return (v - min) / (max - min)
}
