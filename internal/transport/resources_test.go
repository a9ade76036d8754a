package transport

import (
	"context"
	"testing"

	"github.com/oss-mcp/research-engine/internal/store"
	"github.com/stretchr/testify/require"
)

func TestReportURI_RoundTrips(t *testing.T) {
	uri := reportURI(42)
	require.Equal(t, "report://42", uri)

	id, ok := parseReportURI(uri)
	require.True(t, ok)
	require.Equal(t, int64(42), id)
}

func TestParseReportURI_RejectsUnknownScheme(t *testing.T) {
	_, ok := parseReportURI("file:///etc/passwd")
	require.False(t, ok)
}

func TestListAndReadResources(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	id, err := st.InsertReport(context.Background(), &store.Report{
		Query:      "what is bm25",
		ReportText: "BM25 is a ranking function...",
	})
	require.NoError(t, err)

	listResult, err := listResources(context.Background(), st)
	require.NoError(t, err)
	require.Len(t, listResult.Resources, 1)
	require.Equal(t, reportURI(id), listResult.Resources[0].URI)

	readResult, err := readResource(context.Background(), st, reportURI(id))
	require.NoError(t, err)
	require.Len(t, readResult.Contents, 1)
	require.Equal(t, "BM25 is a ranking function...", readResult.Contents[0].Text)
}

func TestReadResource_UnknownID(t *testing.T) {
	st, err := store.Open(context.Background(), ":memory:", 8)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	_, err = readResource(context.Background(), st, reportURI(999))
	require.ErrorIs(t, err, store.ErrReportNotFound)
}
