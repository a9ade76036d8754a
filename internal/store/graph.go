package store

import (
	"context"
	"database/sql"
	"strings"
)

// GraphNode mirrols the GraphNode entity of spec.md §3.
type GraphNode struct {
	ID            int64
	Type          string
	CanonicalName string
	Properties    []byte
	Embedding     []float32
	InDegree      int
	OutDegree     int
}

// GraphEdge mirrors the GraphEdge entity of spec.md §3.
type GraphEdge struct {
	ID         int64
	SourceID   int64
	TargetID   int64
	Relation   string
	Weight     float64
	Confidence float64
	Properties []byte
}

// UpsertNode inserts or fetches the node unique by (type, canonicalName),
// matching the invariant of spec.md §3.
func (s *Store) UpsertNode(ctx context.Context, nodeType, canonicalName string, properties []byte) (int64, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO graph_nodes (type, canonical_name, properties) VALUES (?, ?, ?)
		ON CONFLICT(type, canonical_name) DO UPDATE SET properties = excluded.properties`,
		nodeType, canonicalName, properties)
	if err != nil {
		return 0, err
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `SELECT id FROM graph_nodes WHERE type = ? AND canonical_name = ?`,
		nodeType, canonicalName).Scan(&id)
	return id, err
}

// UpsertEdge inserts or fetches the edge unique by (source, target,
// relation), then bumps degree counters on both endpoints.
func (s *Store) UpsertEdge(ctx context.Context, sourceID, targetID int64, relation string, weight, confidence float64, properties []byte) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO graph_edges (source_id, target_id, relation, weight, confidence, properties)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(source_id, target_id, relation) DO UPDATE SET weight = excluded.weight, confidence = excluded.confidence`,
			sourceID, targetID, relation, weight, confidence, properties)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE graph_nodes SET out_degree = out_degree + 1 WHERE id = ?`, sourceID); err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `UPDATE graph_nodes SET in_degree = in_degree + 1 WHERE id = ?`, targetID)
		return err
	})
}

// FindNodeByName performs a case-insensitive lookup of a canonical node name,
// used by the graph-expansion stage of spec.md §4.6 to detect whether a
// query matches a known entity.
func (s *Store) FindNodeByName(ctx context.Context, name string) (*GraphNode, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, type, canonical_name, properties, in_degree, out_degree
		FROM graph_nodes WHERE LOWER(canonical_name) = LOWER(?) LIMIT 1`, strings.TrimSpace(name))
	var n GraphNode
	if err := row.Scan(&n.ID, &n.Type, &n.CanonicalName, &n.Properties, &n.InDegree, &n.OutDegree); err != nil {
		return nil, err
	}
	return &n, nil
}

// NeighborEdge pairs an edge with its opposite-end node, for BFS expansion.
type NeighborEdge struct {
	Edge  GraphEdge
	Other GraphNode
}

// Neighbors returns the edges (in either direction) touching nodeID, used by
// the bounded-hop graph expansion of spec.md §4.6 stage 3.
func (s *Store) Neighbors(ctx context.Context, nodeID int64) ([]NeighborEdge, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.source_id, e.target_id, e.relation, e.weight, e.confidence,
			n.id, n.type, n.canonical_name, n.in_degree, n.out_degree
		FROM graph_edges e
		JOIN graph_nodes n ON n.id = CASE WHEN e.source_id = ? THEN e.target_id ELSE e.source_id END
		WHERE e.source_id = ? OR e.target_id = ?`, nodeID, nodeID, nodeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []NeighborEdge
	for rows.Next() {
		var ne NeighborEdge
		if err := rows.Scan(&ne.Edge.ID, &ne.Edge.SourceID, &ne.Edge.TargetID, &ne.Edge.Relation,
			&ne.Edge.Weight, &ne.Edge.Confidence,
			&ne.Other.ID, &ne.Other.Type, &ne.Other.CanonicalName, &ne.Other.InDegree, &ne.Other.OutDegree); err != nil {
			return nil, err
		}
		out = append(out, ne)
	}
	return out, rows.Err()
}

// GraphStats returns node and edge counts, for the graph_stats tool.
func (s *Store) GraphStats(ctx context.Context) (nodes, edges int, err error) {
	if err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_nodes`).Scan(&nodes); err != nil {
		return 0, 0, err
	}
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM graph_edges`).Scan(&edges)
	return nodes, edges, err
}
