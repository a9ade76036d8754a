package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/oss-mcp/research-engine/internal/store"
)

const (
	defaultMinResults = 5
	defaultGraphHops  = 2
)

// Item is one final hit returned from Retrieve, carrying the report it
// resolved to alongside its fused score and provenance flags.
type Item struct {
	ReportID   int64
	Query      string
	ReportText string
	Score      float64
	GraphMatch bool
}

// Result is the outcome of a single Retrieve call, per spec.md §4.6 stage 5.
type Result struct {
	Items    []Item
	Degraded bool // true when dense search was skipped (no embedder configured)
	Graph    []GraphMatch
}

// IndexReport writes a report's text into the BM25 postings tables under the
// shared report item id convention (see reportItemID), so it becomes a BM25
// candidate on future queries. Called once per finished report by
// indexAndEmbedReport in cmd/researchmcp/tools.go, not by query-time code.
func IndexReport(ctx context.Context, st *store.Store, reportID int64, query, reportText string) error {
	terms := Tokenize(reportText)
	if len(terms) == 0 {
		return nil
	}
	freq := make(map[string]int, len(terms))
	for _, t := range terms {
		freq[t]++
	}
	doc := store.Document{
		ID:         reportItemID(reportID),
		SourceID:   fmt.Sprintf("%d", reportID),
		Title:      query,
		Content:    reportText,
		TokenCount: len(terms),
	}
	return st.IndexDocument(ctx, doc, freq)
}

// Retrieve runs the full hybrid pipeline of spec.md §4.6: BM25 candidate
// generation, dense vector search with progressive threshold relaxation
// (skipped and flagged degraded when embedder is nil), optional bounded-hop
// graph expansion, and deterministic weighted fusion, returning the top k
// items.
func Retrieve(ctx context.Context, st *store.Store, embedder Embedder, query string, k int) (*Result, error) {
	if k <= 0 {
		k = 10
	}

	bm25, err := BM25(ctx, st, query)
	if err != nil {
		return nil, err
	}

	var dense []VectorCandidate
	degraded := embedder == nil
	if !degraded {
		dense, err = DenseSearch(ctx, st, embedder, query, defaultMinResults)
		if err != nil {
			return nil, err
		}
	}

	graphMatches, err := ExpandGraph(ctx, st, query, defaultGraphHops)
	if err != nil {
		return nil, err
	}
	graphMatchIDs, err := matchingItemIDs(ctx, st, bm25, dense, graphMatches)
	if err != nil {
		return nil, err
	}

	fused := Fuse(bm25, dense, graphMatchIDs, k)

	items := make([]Item, 0, len(fused))
	for _, f := range fused {
		reportID, ok := parseReportItemID(f.ItemID)
		if !ok {
			continue
		}
		report, err := st.GetReport(ctx, reportID)
		if err != nil {
			continue // report vanished or index is stale; skip rather than fail the whole query
		}
		items = append(items, Item{
			ReportID:   report.ID,
			Query:      report.Query,
			ReportText: report.ReportText,
			Score:      f.FusedScore,
			GraphMatch: f.GraphMatch,
		})
	}

	return &Result{Items: items, Degraded: degraded, Graph: graphMatches}, nil
}

// matchingItemIDs flags every fusion candidate whose underlying report text
// mentions one of the matched graph entities' canonical names. The store has
// no direct report<->graph-node link table, so "graph-match presence" (the
// spec's stage-4 tie-break) is approximated by textual co-occurrence rather
// than a foreign key — documented as an Open Question resolution.
func matchingItemIDs(ctx context.Context, st *store.Store, bm25 []BM25Candidate, dense []VectorCandidate, graphMatches []GraphMatch) (map[string]bool, error) {
	if len(graphMatches) == 0 {
		return nil, nil
	}
	names := make([]string, 0, len(graphMatches)+1)
	for _, g := range graphMatches {
		names = append(names, strings.ToLower(g.Node.CanonicalName))
	}

	candidateIDs := make(map[string]struct{}, len(bm25)+len(dense))
	for _, c := range bm25 {
		candidateIDs[c.DocID] = struct{}{}
	}
	for _, c := range dense {
		candidateIDs[reportItemID(c.ReportID)] = struct{}{}
	}

	out := make(map[string]bool, len(candidateIDs))
	for itemID := range candidateIDs {
		reportID, ok := parseReportItemID(itemID)
		if !ok {
			continue
		}
		report, err := st.GetReport(ctx, reportID)
		if err != nil {
			continue
		}
		haystack := strings.ToLower(report.Query + " " + report.ReportText)
		for _, name := range names {
			if name != "" && strings.Contains(haystack, name) {
				out[itemID] = true
				break
			}
		}
	}
	return out, nil
}

func parseReportItemID(itemID string) (int64, bool) {
	var id int64
	n, err := fmt.Sscanf(itemID, reportDocPrefix+"%d", &id)
	if err != nil || n != 1 {
		return 0, false
	}
	return id, true
}
