package core

import (
	"context"
)

// Generator produces text from a prompt. Workers call it while doing their
// domain work; the orchestration core never shapes or validates these calls.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// Searcher retrieves ranked results from a named collection. Like Generator
// it is an opaque capability consumed by worker domain logic.
type Searcher interface {
	Search(ctx context.Context, collectionID, query string, limit int) ([]SearchResult, error)
}

// SearchResult represents a retrieved item with a relevance score and arbitrary metadata.
type SearchResult struct {
	ID       string
	Content  string
	Score    float64
	Metadata map[string]any
}

