// Package retrieval implements the hybrid retrieval core of spec.md §4.6:
// BM25 lexical candidate generation, dense vector search with progressive
// threshold relaxation, optional bounded-hop graph expansion, and a
// deterministic weighted fusion of the lexical and semantic signals.
package retrieval

import (
	"context"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/oss-mcp/research-engine/internal/store"
)

const (
	bm25K1 = 1.2
	bm25B  = 0.75

	candidateLimit = 100
)

// Tokenize lowercases, splits on Unicode word boundaries, and drops
// stopwords, per spec.md §4.6 stage 1.
func Tokenize(text string) []string {
	fields := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if _, stop := stopwords[f]; stop || f == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

var stopwords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {}, "be": {}, "by": {},
	"for": {}, "from": {}, "has": {}, "he": {}, "in": {}, "is": {}, "it": {}, "its": {},
	"of": {}, "on": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {}, "will": {}, "with": {},
}

// BM25Candidate is one scored document from BM25 candidate generation.
type BM25Candidate struct {
	DocID string
	Score float64
}

// BM25 scores documents against the tokenized query using the Okapi BM25 formula
// (k1=1.2, b=0.75), summing per-term contributions per document, and
// returns the top candidateLimit documents by score.
func BM25(ctx context.Context, st *store.Store, query string) ([]BM25Candidate, error) {
	terms := Tokenize(query)
	if len(terms) == 0 {
		return nil, nil
	}
	totalDocs, avgDocLen, err := st.CorpusStats(ctx)
	if err != nil {
		return nil, err
	}
	if totalDocs == 0 || avgDocLen == 0 {
		return nil, nil
	}

	scores := make(map[string]float64)
	lengths := make(map[string]int)
	seen := make(map[string]struct{})
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}

		df, err := st.DocumentFrequency(ctx, term)
		if err != nil {
			return nil, err
		}
		if df == 0 {
			continue
		}
		idf := math.Log(1 + (float64(totalDocs)-float64(df)+0.5)/(float64(df)+0.5))

		postings, err := st.Postings(ctx, term)
		if err != nil {
			return nil, err
		}
		for _, p := range postings {
			dl, ok := lengths[p.DocID]
			if !ok {
				dl, err = st.DocumentLength(ctx, p.DocID)
				if err != nil {
					return nil, err
				}
				lengths[p.DocID] = dl
			}
			tf := float64(p.TermFrequency)
			denom := tf + bm25K1*(1-bm25B+bm25B*float64(dl)/avgDocLen)
			scores[p.DocID] += idf * (tf * (bm25K1 + 1)) / denom
		}
	}

	out := make([]BM25Candidate, 0, len(scores))
	for id, s := range scores {
		out = append(out, BM25Candidate{DocID: id, Score: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].DocID < out[j].DocID
	})
	if len(out) > candidateLimit {
		out = out[:candidateLimit]
	}
	return out, nil
}
