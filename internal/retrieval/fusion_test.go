package retrieval

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFuse_DeterministicOrdering(t *testing.T) {
	bm25 := []BM25Candidate{{DocID: "report:1", Score: 10}, {DocID: "report:2", Score: 5}}
	dense := []VectorCandidate{{ReportID: 1, Score: 0.9}, {ReportID: 2, Score: 0.95}}

	first := Fuse(bm25, dense, nil, 10)
	second := Fuse(bm25, dense, nil, 10)
	require.Equal(t, first, second)
	require.Len(t, first, 2)
	require.Equal(t, "report:1", first[0].ItemID) // bm25 weight dominates at 0.7
}

func TestFuse_TieBrokenByGraphMatchThenID(t *testing.T) {
	bm25 := []BM25Candidate{{DocID: "report:1", Score: 1}, {DocID: "report:2", Score: 1}}
	graphMatch := map[string]bool{"report:2": true}

	out := Fuse(bm25, nil, graphMatch, 10)
	require.Len(t, out, 2)
	require.Equal(t, "report:2", out[0].ItemID) // equal fused score, graph match wins tie
	require.True(t, out[0].GraphMatch)
	require.Equal(t, "report:1", out[1].ItemID)
}

func TestFuse_TieBrokenByLowerIDWhenNoGraphMatch(t *testing.T) {
	bm25 := []BM25Candidate{{DocID: "report:2", Score: 1}, {DocID: "report:1", Score: 1}}
	out := Fuse(bm25, nil, nil, 10)
	require.Equal(t, "report:1", out[0].ItemID)
}

func TestFuse_DedupesByItemID(t *testing.T) {
	bm25 := []BM25Candidate{{DocID: "report:1", Score: 4}}
	dense := []VectorCandidate{{ReportID: 1, Score: 0.8}}
	out := Fuse(bm25, dense, nil, 10)
	require.Len(t, out, 1)
}

func TestFuse_TruncatesToK(t *testing.T) {
	bm25 := []BM25Candidate{{DocID: "report:1", Score: 3}, {DocID: "report:2", Score: 2}, {DocID: "report:3", Score: 1}}
	out := Fuse(bm25, nil, nil, 2)
	require.Len(t, out, 2)
}

func TestMinMaxNormalize_SingleCandidateYieldsOne(t *testing.T) {
	require.Equal(t, 1.0, minMaxNormalize(5, 5, 5))
}
