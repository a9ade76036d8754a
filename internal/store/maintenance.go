package store

import "context"

// Vacuum runs SQLite's VACUUM, reclaiming space left by deleted rows, for
// the db_vacuum tool of spec.md §4.2.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `VACUUM`)
	return err
}

// DBStats is the row-count snapshot returned by the db_stats tool.
type DBStats struct {
	Jobs      int
	JobEvents int
	Reports   int
	Documents int
	Nodes     int
	Edges     int
	Sessions  int
}

// Stats counts the rows in every entity table, for db_stats.
func (s *Store) Stats(ctx context.Context) (DBStats, error) {
	var st DBStats
	counts := []struct {
		table string
		dest  *int
	}{
		{"jobs", &st.Jobs},
		{"job_events", &st.JobEvents},
		{"reports", &st.Reports},
		{"doc_index", &st.Documents},
		{"graph_nodes", &st.Nodes},
		{"graph_edges", &st.Edges},
		{"mcp_sessions", &st.Sessions},
	}
	for _, c := range counts {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM `+c.table).Scan(c.dest); err != nil {
			return DBStats{}, err
		}
	}
	return st, nil
}

// SchemaInfo reports the embedding dimension the database was last
// migrated to, for the db_migrate_status tool.
func (s *Store) SchemaInfo(ctx context.Context) (embeddingDimension int, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT embedding_dimension FROM schema_meta WHERE id = 1`).Scan(&embeddingDimension)
	return
}
