package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const documentColumns = `id, tenant_id, uploaded_by, filename, original_name, content_type,
	file_size, page_count, status, error_message, created_at, updated_at`

func scanDocument(row pgx.Row) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.TenantID, &doc.UploadedBy, &doc.Filename, &doc.OriginalName,
		&doc.ContentType, &doc.FileSize, &doc.PageCount, &doc.Status,
		&doc.ErrorMessage, &doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CreateDocument creates a new document record in UPLOADED state
func (s *Store) CreateDocument(ctx context.Context, doc *Document) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO documents (id, tenant_id, uploaded_by, filename, original_name, content_type, file_size, status)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING `+documentColumns,
		doc.ID, doc.TenantID, doc.UploadedBy, doc.Filename, doc.OriginalName,
		doc.ContentType, doc.FileSize, StatusUploaded,
	)
	created, err := scanDocument(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create document: %w", err)
	}
	return created, nil
}

// GetDocument retrieves a document by id, scoped to the tenant
func (s *Store) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	doc, err := scanDocument(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// GetDocumentByID retrieves a document without tenant scoping. Only for
// background processing runs that already hold a scheduled document id;
// every caller-facing read goes through GetDocument.
func (s *Store) GetDocumentByID(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1`,
		id,
	)
	doc, err := scanDocument(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}
	return doc, nil
}

// ListDocuments retrieves all of a tenant's documents, newest first
func (s *Store) ListDocuments(ctx context.Context, tenantID uuid.UUID) ([]*Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = $1 ORDER BY created_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// ListDocumentsByIDs retrieves the subset of the given ids that exist
// within the tenant. Ids outside the tenant are silently absent from the
// result.
func (s *Store) ListDocumentsByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE tenant_id = $1 AND id = ANY($2)`,
		tenantID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents by ids: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// SetDocumentStatus advances a document's pipeline status. Returns
// ErrNotFound when the document no longer exists, which a background run
// treats as the document having been deleted out from under it.
func (s *Store) SetDocumentStatus(ctx context.Context, id uuid.UUID, status DocumentStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2, updated_at = NOW() WHERE id = $1`,
		id, status,
	)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDocumentFailed marks a document FAILED and records the error message
func (s *Store) SetDocumentFailed(ctx context.Context, id uuid.UUID, message string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE documents SET status = $2, error_message = $3, updated_at = NOW() WHERE id = $1`,
		id, StatusFailed, message,
	)
	if err != nil {
		return fmt.Errorf("failed to mark document failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// SetDocumentPageCount records the page count reported by extraction
func (s *Store) SetDocumentPageCount(ctx context.Context, id uuid.UUID, pageCount int) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE documents SET page_count = $2, updated_at = NOW() WHERE id = $1`,
		id, pageCount,
	)
	if err != nil {
		return fmt.Errorf("failed to set page count: %w", err)
	}
	return nil
}

// DeleteDocument deletes a document, scoped to the tenant. Chunks are
// removed by the ON DELETE CASCADE on document_id.
func (s *Store) DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM documents WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// InsertChunksBatch inserts a document's chunks in a single batch
func (s *Store) InsertChunksBatch(ctx context.Context, chunks []*Chunk) error {
	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO chunks (id, document_id, chunk_index, content, page_number, token_count)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			chunk.ID, chunk.DocumentID, chunk.ChunkIndex, chunk.Content,
			chunk.PageNumber, chunk.TokenCount,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		_, err := br.Exec()
		if err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}
	return nil
}

// ChunkIDsByDocument returns all chunk ids for a document in index order
func (s *Store) ChunkIDsByDocument(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id FROM chunks WHERE document_id = $1 ORDER BY chunk_index`,
		documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list chunk ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan chunk id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// CountChunksByDocument returns the number of chunks stored for a document
func (s *Store) CountChunksByDocument(ctx context.Context, documentID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = $1`,
		documentID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}
