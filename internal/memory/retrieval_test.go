package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	Store
	results []MemoryResult
}

func (s *stubStore) Recall(ctx context.Context, query string, opts RecallOpts) ([]MemoryResult, error) {
	return s.results, nil
}

func TestRetrieveFiltersHitsWithoutCitationWhenRequired(t *testing.T) {
	store := &stubStore{results: []MemoryResult{
		{Memory: Memory{ID: "m1", Content: "has a doc", DocumentID: "fact-1"}, Score: 0.9},
		{Memory: Memory{ID: "m2", Content: "no doc"}, Score: 0.8},
	}}
	policy := RetrievalPolicy{Limit: 10, RequireCitation: true}

	hits, err := Retrieve(context.Background(), store, "q", policy)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "fact-1", hits[0].DocumentID)
}

func TestCiteTruncatesLongExcerpts(t *testing.T) {
	long := make([]byte, 500)
	for i := range long {
		long[i] = 'a'
	}
	hits := []SearchHit{{MemoryResult: MemoryResult{Memory: Memory{Content: string(long), DocumentID: "fact-9"}, Score: 0.5}}}
	cites := Cite(hits)
	require.Len(t, cites, 1)
	assert.LessOrEqual(t, len(cites[0].Excerpt), 284)
	assert.Equal(t, "fact-9", cites[0].DocumentID)
}
