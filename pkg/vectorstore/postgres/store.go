package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"
	pgxvec "github.com/pgvector/pgvector-go/pgx"

	"github.com/MrWong99/travelgenie/pkg/vectorstore"
)

var _ vectorstore.Store = (*Store)(nil)

// Store is a PostgreSQL-backed [vectorstore.Store]. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
	dims int
}

// NewStore connects to the database at dsn, registers pgvector types on every
// connection and runs [Migrate].
//
// embeddingDimensions must match the embedding model, e.g. 1536 for OpenAI
// text-embedding-3-small. Changing it after the first migration requires a
// manual schema change.
func NewStore(ctx context.Context, dsn string, embeddingDimensions int) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("vectorstore postgres: parse dsn: %w", err)
	}
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvec.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("vectorstore postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore postgres: ping: %w", err)
	}
	if err := Migrate(ctx, pool, embeddingDimensions); err != nil {
		pool.Close()
		return nil, fmt.Errorf("vectorstore postgres: %w", err)
	}
	return &Store{pool: pool, dims: embeddingDimensions}, nil
}

// Dimensions returns the configured embedding width.
func (s *Store) Dimensions() int { return s.dims }

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases every pooled connection.
func (s *Store) Close() {
	s.pool.Close()
}

// AddDocuments implements [vectorstore.Store]. The collection row and all
// documents are written in one transaction; documents with an existing ID are
// replaced.
func (s *Store) AddDocuments(ctx context.Context, collection string, docs []vectorstore.Document, embeddings [][]float32) ([]string, error) {
	if len(docs) != len(embeddings) {
		return nil, vectorstore.ErrLengthMismatch
	}
	if len(docs) == 0 {
		return []string{}, nil
	}
	for i, e := range embeddings {
		if len(e) != s.dims {
			return nil, fmt.Errorf("vectorstore postgres: embedding %d has %d dimensions, want %d", i, len(e), s.dims)
		}
	}

	ids := make([]string, len(docs))
	for i, d := range docs {
		ids[i] = d.ID
		if ids[i] == "" {
			ids[i] = uuid.NewString()
		}
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("vectorstore postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertCollection = `
		INSERT INTO rag_collections (name) VALUES ($1)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id`
	var collectionID int64
	if err := tx.QueryRow(ctx, upsertCollection, collection).Scan(&collectionID); err != nil {
		return nil, fmt.Errorf("vectorstore postgres: ensure collection %q: %w", collection, err)
	}

	const insertDocument = `
		INSERT INTO rag_documents (id, collection_id, content, metadata, embedding)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
		    collection_id = EXCLUDED.collection_id,
		    content       = EXCLUDED.content,
		    metadata      = EXCLUDED.metadata,
		    embedding     = EXCLUDED.embedding`

	batch := &pgx.Batch{}
	for i, d := range docs {
		meta := d.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		batch.Queue(insertDocument, ids[i], collectionID, d.Content, meta, pgvector.NewVector(embeddings[i]))
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return nil, fmt.Errorf("vectorstore postgres: insert documents: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("vectorstore postgres: commit: %w", err)
	}
	return ids, nil
}

// Search implements [vectorstore.Store].
func (s *Store) Search(ctx context.Context, collection string, embedding []float32, k int) ([]vectorstore.ScoredDocument, error) {
	if k <= 0 {
		return []vectorstore.ScoredDocument{}, nil
	}
	if len(embedding) != s.dims {
		return nil, fmt.Errorf("vectorstore postgres: query has %d dimensions, want %d", len(embedding), s.dims)
	}

	const q = `
		SELECT d.id::text, d.content, d.metadata, d.embedding <=> $1 AS distance
		FROM   rag_documents d
		JOIN   rag_collections c ON c.id = d.collection_id
		WHERE  c.name = $2
		ORDER  BY distance
		LIMIT  $3`

	rows, err := s.pool.Query(ctx, q, pgvector.NewVector(embedding), collection, k)
	if err != nil {
		return nil, fmt.Errorf("vectorstore postgres: search: %w", err)
	}
	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (vectorstore.ScoredDocument, error) {
		var sd vectorstore.ScoredDocument
		if err := row.Scan(&sd.ID, &sd.Content, &sd.Metadata, &sd.Distance); err != nil {
			return vectorstore.ScoredDocument{}, err
		}
		return sd, nil
	})
	if err != nil {
		return nil, fmt.Errorf("vectorstore postgres: scan rows: %w", err)
	}
	if results == nil {
		results = []vectorstore.ScoredDocument{}
	}
	return results, nil
}
