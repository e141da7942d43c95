package vectorstore

import (
	"context"

	"github.com/google/uuid"
)

// PageUnknown is the sentinel page number stored when a chunk's source
// page is not known.
const PageUnknown = -1

// Record is one chunk handed to the store for embedding and indexing
type Record struct {
	ID           uuid.UUID
	Text         string
	TenantID     uuid.UUID
	DocumentID   uuid.UUID
	DocumentName string
	ChunkIndex   int
	PageNumber   int
}

// Filter restricts a search to a tenant and a set of documents. Both
// predicates are mandatory; a search without them is a tenant-isolation
// bug and is rejected by implementations.
type Filter struct {
	TenantID    uuid.UUID
	DocumentIDs []uuid.UUID
}

// Result is one retrieved chunk with its similarity score, ordered by
// descending similarity as returned by the store
type Result struct {
	ID           uuid.UUID
	Text         string
	Score        float64
	DocumentID   uuid.UUID
	DocumentName string
	ChunkIndex   int
	PageNumber   int
}

// Store persists chunk vectors and supports filtered similarity search
type Store interface {
	Add(ctx context.Context, records []Record) error
	Search(ctx context.Context, query string, topK int, filter Filter) ([]Result, error)
	DeleteByIDs(ctx context.Context, ids []uuid.UUID) error
}
