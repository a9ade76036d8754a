package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrReportNotFound is returned when a report id has no matching row.
var ErrReportNotFound = errors.New("store: report not found")

// Report mirrors the Report entity of spec.md §3.
type Report struct {
	ID         int64
	Query      string
	Params     []byte
	ReportText string
	Embedding  []float32
	Rating     *int
	Metadata   []byte
	CreatedAt  time.Time
}

// InsertReport persists a finished research report and returns its id.
func (s *Store) InsertReport(ctx context.Context, r *Report) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO reports (query, params, report_text, embedding, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		r.Query, r.Params, r.ReportText, EncodeVector(r.Embedding), r.Metadata, time.Now().UTC())
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// GetReport loads a report by id.
func (s *Store) GetReport(ctx context.Context, id int64) (*Report, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, query, params, report_text, embedding, rating, metadata, created_at
		FROM reports WHERE id = ?`, id)
	var r Report
	var emb []byte
	var rating *int
	if err := row.Scan(&r.ID, &r.Query, &r.Params, &r.ReportText, &emb, &rating, &r.Metadata, &r.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrReportNotFound
		}
		return nil, err
	}
	r.Embedding = DecodeVector(emb)
	r.Rating = rating
	return &r, nil
}

// ReportSummary is the lightweight projection of a Report used by listing
// endpoints that do not need the full report text or embedding.
type ReportSummary struct {
	ID        int64
	Query     string
	Rating    *int
	CreatedAt time.Time
}

// ListReports returns the most recent reports, newest first, for the
// resources/list and list_reports operations.
func (s *Store) ListReports(ctx context.Context, limit int) ([]ReportSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, query, rating, created_at FROM reports ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ReportSummary
	for rows.Next() {
		var r ReportSummary
		if err := rows.Scan(&r.ID, &r.Query, &r.Rating, &r.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// DeleteReport removes a report row. Deleting an id that does not exist is
// not an error; the caller (delete_report tool) reports idempotent success.
func (s *Store) DeleteReport(ctx context.Context, id int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM reports WHERE id = ?`, id)
	return err
}

// RateReport records a caller's feedback rating on a finished report, per
// the rate_report tool of spec.md §4.2.
func (s *Store) RateReport(ctx context.Context, id int64, rating int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE reports SET rating = ? WHERE id = ?`, rating, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrReportNotFound
	}
	return nil
}

// AllReportEmbeddings returns (id, embedding) pairs for every report with a
// non-null embedding. The hybrid retrieval core resyncs its in-memory dense
// index from this snapshot (see internal/retrieval); there is no native
// vector-index extension in this module's SQLite build, so dense search is
// brute-force cosine over this snapshot rather than an on-disk ANN index.
func (s *Store) AllReportEmbeddings(ctx context.Context) (map[int64][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, embedding FROM reports WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[int64][]float32)
	for rows.Next() {
		var id int64
		var emb []byte
		if err := rows.Scan(&id, &emb); err != nil {
			return nil, err
		}
		out[id] = DecodeVector(emb)
	}
	return out, rows.Err()
}

// ReportsMissingEmbedding lists report ids that need re-embedding after a
// dimension migration cleared their vectors. Used by the background
// re-embedding task described in spec.md §6/DESIGN NOTES §9.
func (s *Store) ReportsMissingEmbedding(ctx context.Context, limit int) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM reports WHERE embedding IS NULL ORDER BY id ASC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// UpdateReportEmbedding writes a freshly computed embedding back onto a report.
func (s *Store) UpdateReportEmbedding(ctx context.Context, id int64, embedding []float32) error {
	_, err := s.db.ExecContext(ctx, `UPDATE reports SET embedding = ? WHERE id = ?`, EncodeVector(embedding), id)
	return err
}

// EncodeVector serializes a float32 vector into a little-endian byte blob
// suitable for the "vector column" of spec.md §4.7.
func EncodeVector(v []float32) []byte {
	if v == nil {
		return nil
	}
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// DecodeVector is the inverse of EncodeVector.
func DecodeVector(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	out := make([]float32, len(b)/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out
}
