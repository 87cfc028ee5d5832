// Package postgres implements [vectorstore.Store] on PostgreSQL with the
// pgvector extension.
//
// Collections are rows of rag_collections; documents reference their
// collection and store the embedding in a fixed-width vector column indexed
// with HNSW for cosine distance. [Migrate] creates everything it needs,
// including the extension.
//
// Usage:
//
//	store, err := postgres.NewStore(ctx, dsn, 1536)
//	if err != nil { … }
//	defer store.Close()
//
//	ids, _ := store.AddDocuments(ctx, "documents", docs, vectors)
//	hits, _ := store.Search(ctx, "documents", query, 5)
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlCollections = `
CREATE TABLE IF NOT EXISTS rag_collections (
    id          BIGSERIAL    PRIMARY KEY,
    name        TEXT         NOT NULL UNIQUE,
    created_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);
`

// ddlDocuments returns the document DDL with the embedding dimension
// substituted. The dimension is fixed once the table exists.
func ddlDocuments(embeddingDimensions int) string {
	return fmt.Sprintf(`
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS rag_documents (
    id             UUID         PRIMARY KEY,
    collection_id  BIGINT       NOT NULL REFERENCES rag_collections (id) ON DELETE CASCADE,
    content        TEXT         NOT NULL,
    metadata       JSONB        NOT NULL DEFAULT '{}',
    embedding      vector(%d)   NOT NULL,
    created_at     TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_rag_documents_collection
    ON rag_documents (collection_id);

CREATE INDEX IF NOT EXISTS idx_rag_documents_embedding
    ON rag_documents USING hnsw (embedding vector_cosine_ops);
`, embeddingDimensions)
}

// Migrate creates the RAG tables, indexes and the vector extension. It is
// idempotent and safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool, embeddingDimensions int) error {
	if embeddingDimensions <= 0 {
		return fmt.Errorf("postgres migrate: embedding dimensions must be positive, got %d", embeddingDimensions)
	}
	for _, stmt := range []string{ddlCollections, ddlDocuments(embeddingDimensions)} {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
