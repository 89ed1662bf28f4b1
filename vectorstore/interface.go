// Package vectorstore defines the similarity index behind the knowledge base.
package vectorstore

import "context"

// VectorStore indexes knowledge-base snippets by embedding.
type VectorStore interface {
	// Search returns up to limit points closest to vector, best first.
	Search(ctx context.Context, vector []float32, filter SearchFilter, limit int) ([]SearchResult, error)

	// Upsert inserts points or replaces those with the same ID.
	Upsert(ctx context.Context, points []Point) error

	Close() error
}

// SearchFilter narrows a search. The zero value matches everything.
type SearchFilter struct {
	// Sources keeps only snippets added through these channels, e.g. "admin".
	Sources []string
	// Metadata requires exact payload matches.
	Metadata map[string]any
	// MinScore drops results whose similarity is below it.
	MinScore float32
}

// Point is an indexed snippet.
type Point struct {
	// ID must be a UUID or an unsigned integer in string form.
	ID       string
	Vector   []float32
	Title    string
	Content  string
	Source   string
	Metadata map[string]any
}

// SearchResult is a matched snippet with its similarity score.
type SearchResult struct {
	ID       string         `json:"id"`
	Score    float32        `json:"score"`
	Title    string         `json:"title"`
	Content  string         `json:"content"`
	Source   string         `json:"source"`
	Metadata map[string]any `json:"metadata,omitempty"`
}
