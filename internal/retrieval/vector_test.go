package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	vec []float32
	err error
}

func (f fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func TestCosineSimilarity_IdenticalVectors(t *testing.T) {
	a := []float32{1, 0, 0}
	require.InDelta(t, 1.0, CosineSimilarity(a, a), 1e-9)
}

func TestCosineSimilarity_OrthogonalVectors(t *testing.T) {
	require.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
}

func TestCosineSimilarity_MismatchedLength_ReturnsZero(t *testing.T) {
	require.Equal(t, 0.0, CosineSimilarity([]float32{1, 2}, []float32{1}))
}

func TestDenseSearch_ProgressiveThresholdRelaxation(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	closeID, err := st.InsertReport(ctx, &store.Report{Query: "q1", ReportText: "t1"})
	require.NoError(t, err)
	require.NoError(t, st.UpdateReportEmbedding(ctx, closeID, []float32{1, 0, 0}))

	farID, err := st.InsertReport(ctx, &store.Report{Query: "q2", ReportText: "t2"})
	require.NoError(t, err)
	// cos(theta) between (1,0,0) and (0.65,0.76,0) is below the 0.75 starting
	// threshold but surfaces once relaxation reaches a lower pass.
	require.NoError(t, st.UpdateReportEmbedding(ctx, farID, []float32{0.65, 0.76, 0}))

	embedder := fakeEmbedder{vec: []float32{1, 0, 0}}
	candidates, err := DenseSearch(ctx, st, embedder, "query", 2)
	require.NoError(t, err)
	require.Len(t, candidates, 2)
	require.Equal(t, closeID, candidates[0].ReportID)
}

func TestDenseSearch_NoEmbeddings_ReturnsNil(t *testing.T) {
	st := testStore(t)
	candidates, err := DenseSearch(context.Background(), st, fakeEmbedder{vec: []float32{1}}, "q", 1)
	require.NoError(t, err)
	require.Nil(t, candidates)
}

func TestDenseSearch_EmbedderError_Propagates(t *testing.T) {
	st := testStore(t)
	_, err := DenseSearch(context.Background(), st, fakeEmbedder{err: errors.New("boom")}, "q", 1)
	require.Error(t, err)
}
