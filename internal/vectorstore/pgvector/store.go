package pgvector

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvec "github.com/pgvector/pgvector-go"

	"github.com/rag-engine/server/internal/vectorstore"
)

// Embedder converts text into a vector. Embeddings are generated here
// so callers of the store never see raw vectors.
type Embedder interface {
	Embed(ctx context.Context, text string) (*pgvec.Vector, error)
}

// Store is a pgvector-backed vector store. Chunk text and metadata are
// denormalized into the chunk_vectors table so a similarity search can
// apply the tenant and document filter in the same query.
type Store struct {
	pool     *pgxpool.Pool
	embedder Embedder
}

// New creates a pgvector store on the given pool
func New(pool *pgxpool.Pool, embedder Embedder) *Store {
	return &Store{pool: pool, embedder: embedder}
}

// Add embeds each record and inserts it in a single batch
func (s *Store) Add(ctx context.Context, records []vectorstore.Record) error {
	if len(records) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for i, rec := range records {
		embedding, err := s.embedder.Embed(ctx, rec.Text)
		if err != nil {
			return fmt.Errorf("failed to embed record %d: %w", i, err)
		}
		batch.Queue(
			`INSERT INTO chunk_vectors (id, tenant_id, document_id, document_name, chunk_index, page_number, content, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			rec.ID, rec.TenantID, rec.DocumentID, rec.DocumentName,
			rec.ChunkIndex, rec.PageNumber, rec.Text, embedding,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(records); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("failed to insert vector %d: %w", i, err)
		}
	}
	return nil
}

// Search embeds the query and returns the topK nearest chunks within
// the filter, ordered by descending cosine similarity
func (s *Store) Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	if filter.TenantID == uuid.Nil || len(filter.DocumentIDs) == 0 {
		return nil, errors.New("search filter requires a tenant and at least one document")
	}
	if topK <= 0 {
		topK = 5
	}

	embedding, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, content, document_id, document_name, chunk_index, page_number,
		        1 - (embedding <=> $1) AS score
		 FROM chunk_vectors
		 WHERE tenant_id = $2 AND document_id = ANY($3)
		 ORDER BY embedding <=> $1
		 LIMIT $4`,
		embedding, filter.TenantID, filter.DocumentIDs, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}
	defer rows.Close()

	var results []vectorstore.Result
	for rows.Next() {
		var res vectorstore.Result
		if err := rows.Scan(
			&res.ID, &res.Text, &res.DocumentID, &res.DocumentName,
			&res.ChunkIndex, &res.PageNumber, &res.Score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan search result: %w", err)
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// DeleteByIDs removes the vectors with the given chunk ids
func (s *Store) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := s.pool.Exec(ctx, `DELETE FROM chunk_vectors WHERE id = ANY($1)`, ids)
	if err != nil {
		return fmt.Errorf("failed to delete vectors: %w", err)
	}
	return nil
}
