// Package embeddings defines the Provider interface for vector embedding backends.
//
// An embeddings provider maps text to dense float32 vectors. The RAG service
// embeds ingested documents and incoming questions with the same provider so
// that similarity search in the vector store is meaningful.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any text-embedding backend.
//
// All vectors returned by a single Provider share the same dimensionality
// (Dimensions). Vectors from different providers must not be mixed in one
// collection unless both use the same model.
type Provider interface {
	// Embed computes the embedding vector for a single text string. The text is
	// passed through verbatim.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch computes embedding vectors for texts in a single call. The i-th
	// result corresponds to texts[i]. On error the entire result is nil.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the fixed length of every vector produced by this provider.
	Dimensions() int

	// ModelID returns the provider-specific model identifier.
	ModelID() string
}
