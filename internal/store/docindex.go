package store

import (
	"context"
	"database/sql"
)

// Document is one indexed BM25 document, per spec.md §3 (DocumentIndex).
type Document struct {
	ID         string
	SourceID   string
	Title      string
	Content    string
	TokenCount int
}

// IndexDocument upserts a document and its term postings transactionally so
// that "every indexed document appears in both postings and document-length
// tables" (spec.md §3 invariant) never observes a partial write. terms maps
// each distinct token to its frequency within the document.
func (s *Store) IndexDocument(ctx context.Context, doc Document, terms map[string]int) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		var existed bool
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM doc_index WHERE id = ?`, doc.ID).Scan(new(int)); err == nil {
			existed = true
		} else if err != sql.ErrNoRows {
			return err
		}
		if existed {
			if err := removePostingsTx(ctx, tx, doc.ID); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				UPDATE doc_index SET source_id = ?, title = ?, content = ?, token_count = ? WHERE id = ?`,
				doc.SourceID, doc.Title, doc.Content, doc.TokenCount, doc.ID); err != nil {
				return err
			}
		} else {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doc_index (id, source_id, title, content, token_count) VALUES (?, ?, ?, ?, ?)`,
				doc.ID, doc.SourceID, doc.Title, doc.Content, doc.TokenCount); err != nil {
				return err
			}
		}
		for term, tf := range terms {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doc_postings (term, doc_id, term_frequency) VALUES (?, ?, ?)`,
				term, doc.ID, tf); err != nil {
				return err
			}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO doc_terms (term, document_frequency) VALUES (?, 1)
				ON CONFLICT(term) DO UPDATE SET document_frequency = document_frequency + 1`,
				term); err != nil {
				return err
			}
		}
		return nil
	})
}

func removePostingsTx(ctx context.Context, tx *sql.Tx, docID string) error {
	rows, err := tx.QueryContext(ctx, `SELECT term FROM doc_postings WHERE doc_id = ?`, docID)
	if err != nil {
		return err
	}
	var terms []string
	for rows.Next() {
		var t string
		if err := rows.Scan(&t); err != nil {
			rows.Close()
			return err
		}
		terms = append(terms, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM doc_postings WHERE doc_id = ?`, docID); err != nil {
		return err
	}
	for _, t := range terms {
		if _, err := tx.ExecContext(ctx, `
			UPDATE doc_terms SET document_frequency = MAX(0, document_frequency - 1) WHERE term = ?`, t); err != nil {
			return err
		}
	}
	return nil
}

// Posting is one (doc, term-frequency) pair for a query term.
type Posting struct {
	DocID         string
	TermFrequency int
}

// Postings returns every document containing term along with its in-document
// term frequency, for BM25 scoring.
func (s *Store) Postings(ctx context.Context, term string) ([]Posting, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc_id, term_frequency FROM doc_postings WHERE term = ?`, term)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Posting
	for rows.Next() {
		var p Posting
		if err := rows.Scan(&p.DocID, &p.TermFrequency); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// DocumentFrequency returns the number of documents containing term.
func (s *Store) DocumentFrequency(ctx context.Context, term string) (int, error) {
	var df int
	err := s.db.QueryRowContext(ctx, `SELECT document_frequency FROM doc_terms WHERE term = ?`, term).Scan(&df)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return df, err
}

// CorpusStats returns the total document count and average document length
// (in tokens), the N and avgdl terms of the BM25 formula in spec.md §4.6.
func (s *Store) CorpusStats(ctx context.Context) (totalDocs int, avgDocLen float64, err error) {
	err = s.db.QueryRowContext(ctx, `SELECT COUNT(*), COALESCE(AVG(token_count), 0) FROM doc_index`).Scan(&totalDocs, &avgDocLen)
	return
}

// DocumentLength returns the token count of a document.
func (s *Store) DocumentLength(ctx context.Context, docID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT token_count FROM doc_index WHERE id = ?`, docID).Scan(&n)
	return n, err
}

// GetDocument loads a document's content and title, used to render
// retrieval results.
func (s *Store) GetDocument(ctx context.Context, id string) (*Document, error) {
	var d Document
	err := s.db.QueryRowContext(ctx, `SELECT id, source_id, title, content, token_count FROM doc_index WHERE id = ?`, id).
		Scan(&d.ID, &d.SourceID, &d.Title, &d.Content, &d.TokenCount)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// ListDocuments returns every indexed document's metadata (without content),
// for the kb_list_documents tool.
func (s *Store) ListDocuments(ctx context.Context, limit int) ([]Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, source_id, title, '', token_count FROM doc_index ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		var d Document
		if err := rows.Scan(&d.ID, &d.SourceID, &d.Title, &d.Content, &d.TokenCount); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// DeleteDocument removes a document and its postings, keeping doc_terms'
// document-frequency counters consistent via the same path IndexDocument's
// re-indexing uses.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	return s.Tx(ctx, func(tx *sql.Tx) error {
		if err := removePostingsTx(ctx, tx, id); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `DELETE FROM doc_index WHERE id = ?`, id)
		return err
	})
}
