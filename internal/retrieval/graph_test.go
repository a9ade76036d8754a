package retrieval

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExpandGraph_NoMatch_ReturnsNilNotError(t *testing.T) {
	st := testStore(t)
	matches, err := ExpandGraph(context.Background(), st, "nonexistent entity", 2)
	require.NoError(t, err)
	require.Nil(t, matches)
}

func TestExpandGraph_RanksByWeightTimesConfidence(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	root, err := st.UpsertNode(ctx, "person", "Ada Lovelace", nil)
	require.NoError(t, err)
	strong, err := st.UpsertNode(ctx, "person", "Charles Babbage", nil)
	require.NoError(t, err)
	weak, err := st.UpsertNode(ctx, "concept", "Analytical Engine", nil)
	require.NoError(t, err)

	require.NoError(t, st.UpsertEdge(ctx, root, weak, "relates_to", 0.9, 0.3, nil))
	require.NoError(t, st.UpsertEdge(ctx, root, strong, "collaborated_with", 0.9, 0.9, nil))

	matches, err := ExpandGraph(ctx, st, "ada lovelace", 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	require.Equal(t, strong, matches[0].Node.ID)
	require.Equal(t, weak, matches[1].Node.ID)
}

func TestExpandGraph_RespectsMaxHops(t *testing.T) {
	st := testStore(t)
	ctx := context.Background()

	a, err := st.UpsertNode(ctx, "t", "a", nil)
	require.NoError(t, err)
	b, err := st.UpsertNode(ctx, "t", "b", nil)
	require.NoError(t, err)
	c, err := st.UpsertNode(ctx, "t", "c", nil)
	require.NoError(t, err)
	require.NoError(t, st.UpsertEdge(ctx, a, b, "rel", 1, 1, nil))
	require.NoError(t, st.UpsertEdge(ctx, b, c, "rel", 1, 1, nil))

	matches, err := ExpandGraph(ctx, st, "a", 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, b, matches[0].Node.ID)
}
