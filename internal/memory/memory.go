// Package memory provides semantic memory storage with vector embeddings.
package memory

import (
	"context"
	"time"
)

// Memory represents a stored memory with metadata.
type Memory struct {
	ID          string    `json:"id"`
	Content     string    `json:"content"`
	Source      string    `json:"source"`      // "session:xyz", "explicit", "consolidated"
	Importance  float32   `json:"importance"`  // 0-1
	CreatedAt   time.Time `json:"created_at"`
	AccessedAt  time.Time `json:"accessed_at"`
	AccessCount int       `json:"access_count"`
	Tags        []string  `json:"tags,omitempty"`

	// DocumentID names the memdoc.Frontmatter.ID of the garden document this
	// memory backs, when the gardener proposed it from a typed extraction
	// rather than the store's own heuristic consolidation. Empty when a
	// memory has no citable document behind it.
	DocumentID string `json:"document_id,omitempty"`
}

// MemoryResult is a memory with relevance score from search.
type MemoryResult struct {
	Memory
	Score float32 `json:"score"` // similarity score 0-1
}

// MemoryMetadata holds metadata for creating a memory.
type MemoryMetadata struct {
	Source     string   // "session:xyz", "explicit", etc.
	Importance float32  // 0-1, default 0.5
	Tags       []string // optional categorization

	// DocumentID, if set, ties the stored memory back to a memdoc garden
	// document so RetrievalPolicy.RequireCitation can keep it.
	DocumentID string
}

// RecallOpts configures memory recall.
type RecallOpts struct {
	Limit     int        // max results, default 10
	MinScore  float32    // minimum similarity score, default 0.0
	TimeRange *TimeRange // optional time filter
	Tags      []string   // optional tag filter
}

// TimeRange represents a time window for filtering.
type TimeRange struct {
	Start time.Time
	End   time.Time
}

// Message represents a conversation message for consolidation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchResult is for key-based search (legacy compatibility).
type SearchResult struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Store is the interface for memory storage.
type Store interface {
	// Semantic memory operations
	Remember(ctx context.Context, content string, meta MemoryMetadata) error
	Recall(ctx context.Context, query string, opts RecallOpts) ([]MemoryResult, error)
	Forget(ctx context.Context, id string) error

	// Key-value operations (backward compatibility)
	Get(key string) (string, error)
	Set(key, value string) error
	List(prefix string) ([]string, error)
	Search(query string) ([]SearchResult, error)

	// Session consolidation
	ConsolidateSession(ctx context.Context, sessionID string, transcript []Message) error

	// Lifecycle
	Close() error
}

// EmbeddingProvider generates vector embeddings for text.
type EmbeddingProvider interface {
	// Embed generates embeddings for the given texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the embedding dimension.
	Dimension() int
}

// Consolidator extracts insights from session transcripts.
type Consolidator interface {
	// Extract extracts key insights from a transcript.
	Extract(ctx context.Context, transcript []Message) ([]string, error)
}

// MockEmbedder is a deterministic, hash-based EmbeddingProvider for tests
// and offline development, so Store implementations can be exercised
// without a real embedding API. Each text hashes to a fixed-dimension
// vector; identical input always produces identical output.
type MockEmbedder struct {
	dim int
}

// NewMockEmbedder creates a mock embedder of the given dimension.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{dim: dim}
}

func (m *MockEmbedder) Dimension() int { return m.dim }

func (m *MockEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = hashEmbed(t, m.dim)
	}
	return out, nil
}

// hashEmbed turns text into a deterministic unit-ish vector via a simple
// rolling hash seeded per dimension, good enough to give similar strings
// similar-ish vectors without pulling in a real embedding model.
func hashEmbed(text string, dim int) []float32 {
	v := make([]float32, dim)
	var h uint32 = 2166136261
	for i := 0; i < len(text); i++ {
		h ^= uint32(text[i])
		h *= 16777619
		v[i%dim] += float32(h%1000) / 1000.0
	}
	return v
}
