package memory

import (
	"context"
)

// ToolsAdapter adapts memory.Store to the dispatch registry's tool-body
// signature, and carries a RetrievalPolicy so every Recall through it goes
// through the same citation/min-score gating as internal/memory.Retrieve.
type ToolsAdapter struct {
	store  Store
	policy RetrievalPolicy
}

// NewToolsAdapter creates a new adapter for the tools package.
func NewToolsAdapter(store Store) *ToolsAdapter {
	return &ToolsAdapter{store: store, policy: DefaultRetrievalPolicy()}
}

// NewToolsAdapterWithPolicy creates an adapter enforcing a non-default
// RetrievalPolicy, e.g. RequireCitation for gardener-backed tool calls.
func NewToolsAdapterWithPolicy(store Store, policy RetrievalPolicy) *ToolsAdapter {
	return &ToolsAdapter{store: store, policy: policy}
}

// ToolsMemoryMeta is the tool-facing projection of MemoryMetadata.
type ToolsMemoryMeta struct {
	Source     string
	Importance float32
	Tags       []string // first tag is used as category if present

	// DocumentID ties the memory to a memdoc garden document; required
	// when the adapter's policy has RequireCitation set.
	DocumentID string
}

// ToolsMemoryResult is the tool-facing projection of a SearchHit.
type ToolsMemoryResult struct {
	ID         string  `json:"id"`
	Content    string  `json:"content"`
	Category   string  `json:"category,omitempty"` // first tag, if any
	DocumentID string  `json:"document_id,omitempty"`
	Score      float32 `json:"score"`
}

// Remember stores a memory.
// For compatibility: first tag is used as category if present.
func (a *ToolsAdapter) Remember(ctx context.Context, content string, meta ToolsMemoryMeta) error {
	return a.store.Remember(ctx, content, MemoryMetadata{
		Source:     meta.Source,
		Importance: meta.Importance,
		Tags:       meta.Tags,
		DocumentID: meta.DocumentID,
	})
}

// Recall searches for relevant memories, applying the adapter's
// RetrievalPolicy (so RequireCitation silently drops uncited hits rather
// than surfacing them to the caller).
func (a *ToolsAdapter) Recall(ctx context.Context, query string, limit int) ([]ToolsMemoryResult, error) {
	policy := a.policy
	if limit > 0 {
		policy.Limit = limit
	}
	hits, err := Retrieve(ctx, a.store, query, policy)
	if err != nil {
		return nil, err
	}

	out := make([]ToolsMemoryResult, len(hits))
	for i, h := range hits {
		category := ""
		if len(h.Tags) > 0 {
			category = h.Tags[0]
		}
		out[i] = ToolsMemoryResult{
			ID:         h.ID,
			Content:    h.Content,
			Category:   category,
			DocumentID: h.DocumentID,
			Score:      h.Score,
		}
	}
	return out, nil
}

// Forget deletes a memory by ID.
func (a *ToolsAdapter) Forget(ctx context.Context, id string) error {
	return a.store.Forget(ctx, id)
}

// ConsolidateSession wraps the store's consolidation.
func (a *ToolsAdapter) ConsolidateSession(ctx context.Context, sessionID string, transcript []Message) error {
	return a.store.ConsolidateSession(ctx, sessionID, transcript)
}

// Close closes the underlying store.
func (a *ToolsAdapter) Close() error {
	return a.store.Close()
}
