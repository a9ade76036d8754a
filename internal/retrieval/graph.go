package retrieval

import (
	"context"
	"database/sql"
	"errors"
	"sort"

	"github.com/oss-mcp/research-engine/internal/store"
)

// GraphMatch is one node reached by bounded-hop expansion from the query's
// matched entity, per spec.md §4.6 stage 3.
type GraphMatch struct {
	Node  store.GraphNode
	Edge  store.GraphEdge
	Hops  int
	Score float64 // weight * confidence
}

// ExpandGraph matches query against a canonical node name (case-insensitive)
// and expands to neighbors up to maxHops, ranking edges by weight*confidence.
// Returns nil (not an error) when the query matches no known entity or graph
// enrichment finds nothing — graph expansion is optional supplementary
// context, never a hard requirement for retrieval to succeed.
func ExpandGraph(ctx context.Context, st *store.Store, query string, maxHops int) ([]GraphMatch, error) {
	root, err := st.FindNodeByName(ctx, query)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if maxHops <= 0 {
		maxHops = 2
	}

	visited := map[int64]bool{root.ID: true}
	var out []GraphMatch
	frontier := []int64{root.ID}
	for hop := 1; hop <= maxHops && len(frontier) > 0; hop++ {
		var next []int64
		for _, nodeID := range frontier {
			neighbors, err := st.Neighbors(ctx, nodeID)
			if err != nil {
				return nil, err
			}
			for _, n := range neighbors {
				if visited[n.Other.ID] {
					continue
				}
				visited[n.Other.ID] = true
				out = append(out, GraphMatch{
					Node:  n.Other,
					Edge:  n.Edge,
					Hops:  hop,
					Score: n.Edge.Weight * n.Edge.Confidence,
				})
				next = append(next, n.Other.ID)
			}
		}
		frontier = next
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Node.ID < out[j].Node.ID
	})
	return out, nil
}
