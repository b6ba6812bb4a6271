package memory

import (
	"context"
	"fmt"
)

// RetrievalPolicy shapes how a query is turned into a Recall call and how
// its results are surfaced to the orchestrator: how many hits to pull, the
// minimum score worth acting on, and whether hits must cite a backing
// memdoc document rather than a bare KV/session blob. Grounded on the
// teacher's RecallOpts, extended per spec.md §4.10 with the
// citation requirement the teacher's Store never had.
type RetrievalPolicy struct {
	Limit           int
	MinScore        float32
	RequireCitation bool
	Tags            []string
}

// DefaultRetrievalPolicy matches the teacher's RecallOpts defaults (10
// results, 0 minimum score) with citations off, since not every backing
// Store implementation ties a Memory back to a memdoc.Document path.
func DefaultRetrievalPolicy() RetrievalPolicy {
	return RetrievalPolicy{Limit: 10, MinScore: 0}
}

// SearchHit is a Recall result surfaced to the orchestrator. Its
// DocumentID is read straight off the backing Memory, which every Store
// implementation now threads through its own persistence path (Bleve's
// indexed document_id field, SQLite's document_id column, the in-memory
// store's struct field) rather than being resolved through a separate
// lookup after the fact.
type SearchHit struct {
	MemoryResult
}

// Citation is a compact reference to a SearchHit suitable for inclusion in
// a model-facing answer.
type Citation struct {
	DocumentID string
	Excerpt    string
	Score      float32
}

// Retrieve runs a policy-governed Recall against store: applies the
// policy's limit/min-score/tags, and (when RequireCitation is set) drops
// any hit whose Memory doesn't carry a DocumentID.
func Retrieve(ctx context.Context, store Store, query string, policy RetrievalPolicy) ([]SearchHit, error) {
	results, err := store.Recall(ctx, query, RecallOpts{
		Limit:    policy.Limit,
		MinScore: policy.MinScore,
		Tags:     policy.Tags,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	hits := make([]SearchHit, 0, len(results))
	for _, r := range results {
		if policy.RequireCitation && r.DocumentID == "" {
			continue
		}
		hits = append(hits, SearchHit{MemoryResult: r})
	}
	return hits, nil
}

// Cite converts hits into Citations, truncating each excerpt to a
// reasonable prompt-budget length.
func Cite(hits []SearchHit) []Citation {
	out := make([]Citation, 0, len(hits))
	for _, h := range hits {
		excerpt := h.Content
		const maxExcerpt = 280
		if len(excerpt) > maxExcerpt {
			excerpt = excerpt[:maxExcerpt] + "..."
		}
		out = append(out, Citation{
			DocumentID: h.DocumentID,
			Excerpt:    excerpt,
			Score:      h.Score,
		})
	}
	return out
}
