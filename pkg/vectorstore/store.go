// Package vectorstore defines the document store behind the RAG service.
//
// Documents live in named collections. Each document carries its text, a
// free-form metadata object and an embedding vector produced by an
// [embeddings.Provider]. Search ranks the documents of one collection by
// cosine distance to a query embedding.
//
// Implementations must be safe for concurrent use.
//
// [embeddings.Provider]: github.com/MrWong99/travelgenie/pkg/provider/embeddings.Provider
package vectorstore

import (
	"context"
	"errors"
)

// ErrLengthMismatch is returned by AddDocuments when docs and embeddings
// differ in length.
var ErrLengthMismatch = errors.New("vectorstore: documents and embeddings differ in length")

// Document is one stored text.
type Document struct {
	// ID is assigned by the store on insert when empty.
	ID string

	Content  string
	Metadata map[string]any
}

// ScoredDocument is a search hit.
type ScoredDocument struct {
	Document

	// Distance is the cosine distance to the query in [0, 2]; lower is closer.
	Distance float64
}

// Store is a collection-scoped vector store.
type Store interface {
	// AddDocuments inserts docs with their embeddings into collection,
	// creating the collection on first use, and returns the document IDs in
	// input order. docs and embeddings must have the same length.
	AddDocuments(ctx context.Context, collection string, docs []Document, embeddings [][]float32) ([]string, error)

	// Search returns at most k documents of collection ordered by ascending
	// distance. An unknown collection yields an empty, non-nil slice.
	Search(ctx context.Context, collection string, embedding []float32, k int) ([]ScoredDocument, error)

	// Close releases the store's resources.
	Close()
}
