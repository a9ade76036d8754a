// Package store is the embedded relational+vector persistence layer. It
// follows the schema-init style of nico-hyperjump-sagasu's
// internal/storage/sqlite.go: a single *sql.DB, WAL mode, idempotent
// CREATE TABLE IF NOT EXISTS DDL run on every boot, and explicit
// context-bound exec/query helpers rather than an ORM.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Store wraps the embedded SQLite database. All entity-specific operations
// (Job, JobEvent, Report, DocumentIndex, GraphNode/GraphEdge, Session) are
// implemented as methods in the sibling files of this package.
type Store struct {
	db *sql.DB
}

// Open opens or creates the SQLite database at path, enables WAL mode, and
// runs the schema migration routine described in spec.md §4.7/§6.
func Open(ctx context.Context, path string, embeddingDim int) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite writers serialize; a single conn avoids SQLITE_BUSY storms.
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	s := &Store{db: db}
	if err := s.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	migrated, err := s.migrateEmbeddingDimension(ctx, embeddingDim)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate embedding dimension: %w", err)
	}
	_ = migrated // not reported to the caller; Open returns only the Store.
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the database connection is alive, for the /health endpoint's
// "database" check.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Tx runs fn inside a transaction, committing on success and rolling back on
// any error fn returns (including a panic, which is re-raised after
// rollback). This is the `tx(fn)` primitive spec.md §4.7 requires for the
// Enqueue/Claim/Finish/Cancel transactional boundaries.
func (s *Store) Tx(ctx context.Context, fn func(tx *sql.Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
	}()
	if err = fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (s *Store) initSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS schema_meta (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		embedding_dimension INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS jobs (
		id TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		params BLOB NOT NULL,
		status TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		finished_at TIMESTAMP,
		lease_expires_at TIMESTAMP,
		heartbeat_at TIMESTAMP,
		idempotency_key TEXT,
		idempotency_expires_at TIMESTAMP,
		result BLOB,
		attempt INTEGER NOT NULL DEFAULT 0,
		notify_url TEXT,
		retry_of TEXT,
		error_message TEXT
	);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_jobs_idempotency_key
		ON jobs(idempotency_key) WHERE idempotency_key IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_jobs_status_created ON jobs(status, created_at);
	CREATE INDEX IF NOT EXISTS idx_jobs_lease ON jobs(status, lease_expires_at);

	CREATE TABLE IF NOT EXISTS job_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
		event_type TEXT NOT NULL,
		payload BLOB NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_job_events_job_id ON job_events(job_id, id);

	CREATE TABLE IF NOT EXISTS reports (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		params BLOB,
		report_text TEXT NOT NULL,
		embedding BLOB,
		rating INTEGER,
		metadata BLOB,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS doc_index (
		id TEXT PRIMARY KEY,
		source_id TEXT,
		title TEXT,
		content TEXT NOT NULL,
		token_count INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS doc_terms (
		term TEXT PRIMARY KEY,
		document_frequency INTEGER NOT NULL DEFAULT 0
	);

	CREATE TABLE IF NOT EXISTS doc_postings (
		term TEXT NOT NULL,
		doc_id TEXT NOT NULL REFERENCES doc_index(id) ON DELETE CASCADE,
		term_frequency INTEGER NOT NULL,
		PRIMARY KEY (term, doc_id)
	);
	CREATE INDEX IF NOT EXISTS idx_doc_postings_term ON doc_postings(term);

	CREATE TABLE IF NOT EXISTS graph_nodes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		type TEXT NOT NULL,
		canonical_name TEXT NOT NULL,
		properties BLOB,
		embedding BLOB,
		in_degree INTEGER NOT NULL DEFAULT 0,
		out_degree INTEGER NOT NULL DEFAULT 0,
		UNIQUE(type, canonical_name)
	);
	CREATE INDEX IF NOT EXISTS idx_graph_nodes_name ON graph_nodes(canonical_name);

	CREATE TABLE IF NOT EXISTS graph_edges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		source_id INTEGER NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
		target_id INTEGER NOT NULL REFERENCES graph_nodes(id) ON DELETE CASCADE,
		relation TEXT NOT NULL,
		weight REAL NOT NULL DEFAULT 1.0,
		confidence REAL NOT NULL DEFAULT 1.0,
		properties BLOB,
		UNIQUE(source_id, target_id, relation)
	);
	CREATE INDEX IF NOT EXISTS idx_graph_edges_source ON graph_edges(source_id);
	CREATE INDEX IF NOT EXISTS idx_graph_edges_target ON graph_edges(target_id);

	CREATE TABLE IF NOT EXISTS mcp_sessions (
		id TEXT PRIMARY KEY,
		transport TEXT NOT NULL,
		capabilities BLOB,
		subscriptions BLOB,
		principal TEXT,
		protocol_version TEXT,
		created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
		last_seen_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_last_seen ON mcp_sessions(last_seen_at);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// migrateEmbeddingDimension implements the schema-migration routine of
// spec.md §6: if the stored embedder dimension differs from the configured
// one, all report and graph-node embeddings are cleared and the new
// dimension recorded. Returns true if a migration (dimension change) was
// performed.
func (s *Store) migrateEmbeddingDimension(ctx context.Context, dim int) (bool, error) {
	var existing int
	err := s.db.QueryRowContext(ctx, `SELECT embedding_dimension FROM schema_meta WHERE id = 1`).Scan(&existing)
	switch {
	case err == sql.ErrNoRows:
		_, err = s.db.ExecContext(ctx, `INSERT INTO schema_meta (id, embedding_dimension) VALUES (1, ?)`, dim)
		return false, err
	case err != nil:
		return false, err
	case existing == dim:
		return false, nil
	}
	return true, s.Tx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `UPDATE reports SET embedding = NULL`); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE graph_nodes SET embedding = NULL`); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `UPDATE schema_meta SET embedding_dimension = ? WHERE id = 1`, dim)
		return err
	})
}
