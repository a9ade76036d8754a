package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRetrieve_DegradedWithoutEmbedder(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustIndexReport(t, st, "rust ownership", "rust's borrow checker enforces ownership at compile time")

	res, err := Retrieve(ctx, st, nil, "rust ownership", 5)
	require.NoError(t, err)
	require.True(t, res.Degraded)
	require.Len(t, res.Items, 1)
}

func TestRetrieve_CombinesLexicalAndDenseSignals(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	id := mustIndexReport(t, st, "vector databases", "hnsw indexes approximate nearest neighbor search")
	require.NoError(t, st.UpdateReportEmbedding(ctx, id, []float32{1, 0, 0}))

	res, err := Retrieve(ctx, st, fakeEmbedder{vec: []float32{1, 0, 0}}, "vector databases", 5)
	require.NoError(t, err)
	require.False(t, res.Degraded)
	require.Len(t, res.Items, 1)
	require.Equal(t, id, res.Items[0].ReportID)
}

func TestRetrieve_NoMatches_ReturnsEmptyNotError(t *testing.T) {
	st := testStore(t)
	res, err := Retrieve(context.Background(), st, nil, "nothing indexed yet", 5)
	require.NoError(t, err)
	require.Empty(t, res.Items)
}

func TestRetrieve_GraphMatchFlagsCoOccurringReport(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	id := mustIndexReport(t, st, "ada lovelace biography", "ada lovelace wrote the first algorithm for the analytical engine")
	_, err := st.UpsertNode(ctx, "person", "Ada Lovelace", nil)
	require.NoError(t, err)
	other, err := st.UpsertNode(ctx, "concept", "Analytical Engine", nil)
	require.NoError(t, err)
	root, err := st.FindNodeByName(ctx, "Ada Lovelace")
	require.NoError(t, err)
	require.NoError(t, st.UpsertEdge(ctx, root.ID, other, "invented", 1, 1, nil))

	res, err := Retrieve(ctx, st, nil, "ada lovelace", 5)
	require.NoError(t, err)
	require.Len(t, res.Items, 1)
	require.Equal(t, id, res.Items[0].ReportID)
	require.True(t, res.Items[0].GraphMatch)
	require.NotEmpty(t, res.Graph)
}
