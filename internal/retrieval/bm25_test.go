package retrieval

import (
	"context"
	"testing"

	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *store.Store {
	t.Helper()
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func mustIndexReport(t *testing.T, st *store.Store, query, text string) int64 {
	t.Helper()
	ctx := context.Background()
	id, err := st.InsertReport(ctx, &store.Report{Query: query, ReportText: text, Params: []byte("{}")})
	require.NoError(t, err)
	require.NoError(t, IndexReport(ctx, st, id, query, text))
	return id
}

func TestTokenize_LowercasesAndDropsStopwords(t *testing.T) {
	got := Tokenize("The Quick Brown Fox, and the Lazy Dog")
	require.Equal(t, []string{"quick", "brown", "fox", "lazy", "dog"}, got)
}

func TestBM25_RanksMoreRelevantDocHigher(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	idRelevant := mustIndexReport(t, st, "golang concurrency", "goroutines and channels are the core of golang concurrency patterns in golang")
	idOther := mustIndexReport(t, st, "baking bread", "sourdough starter and proofing times for homemade bread")

	candidates, err := BM25(ctx, st, "golang concurrency")
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	require.Equal(t, reportItemID(idRelevant), candidates[0].DocID)
	for _, c := range candidates {
		require.NotEqual(t, reportItemID(idOther), c.DocID)
	}
}

func TestBM25_NoQueryTerms_ReturnsNil(t *testing.T) {
	st := testStore(t)
	candidates, err := BM25(context.Background(), st, "the and of")
	require.NoError(t, err)
	require.Nil(t, candidates)
}

func TestBM25_EmptyCorpus_ReturnsNil(t *testing.T) {
	st := testStore(t)
	candidates, err := BM25(context.Background(), st, "anything")
	require.NoError(t, err)
	require.Nil(t, candidates)
}

func TestBM25_Deterministic(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()
	mustIndexReport(t, st, "alpha beta", "alpha beta gamma alpha")
	mustIndexReport(t, st, "beta gamma", "beta gamma delta beta")

	first, err := BM25(ctx, st, "alpha beta gamma")
	require.NoError(t, err)
	second, err := BM25(ctx, st, "alpha beta gamma")
	require.NoError(t, err)
	require.Equal(t, first, second)
}
