package store

import (
	"time"

	"github.com/google/uuid"
)

// DocumentStatus tracks a document through the processing pipeline.
type DocumentStatus string

const (
	StatusUploaded   DocumentStatus = "UPLOADED"
	StatusProcessing DocumentStatus = "PROCESSING"
	StatusChunking   DocumentStatus = "CHUNKING"
	StatusEmbedding  DocumentStatus = "EMBEDDING"
	StatusReady      DocumentStatus = "READY"
	StatusFailed     DocumentStatus = "FAILED"
)

// Terminal reports whether a processing run ends in this status.
func (s DocumentStatus) Terminal() bool {
	return s == StatusReady || s == StatusFailed
}

// Tenant is the isolation boundary. Every document, conversation and
// chunk belongs to exactly one tenant.
type Tenant struct {
	ID        uuid.UUID
	Name      string
	CreatedAt time.Time
}

// User represents an uploader within a tenant
type User struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	Email     string
	CreatedAt time.Time
}

// Document represents an uploaded document and its processing state
type Document struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	UploadedBy   uuid.UUID
	Filename     string
	OriginalName string
	ContentType  string
	FileSize     int64
	PageCount    *int
	Status       DocumentStatus
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Chunk is one retrievable segment of a document's extracted text.
// Chunks are written once per processing run and never mutated.
type Chunk struct {
	ID         uuid.UUID
	DocumentID uuid.UUID
	ChunkIndex int
	Content    string
	PageNumber *int
	TokenCount int
	CreatedAt  time.Time
}

// Conversation represents a chat thread within a tenant
type Conversation struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	CreatedBy uuid.UUID
	Title     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is a single turn in a conversation, immutable once created.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	Role           string
	Content        string
	CreatedAt      time.Time
}

// APIKey authenticates a caller and resolves their tenant and user.
// Only the SHA-256 hash of the key material is stored.
type APIKey struct {
	ID        uuid.UUID
	TenantID  uuid.UUID
	UserID    uuid.UUID
	KeyHash   string
	Name      string
	CreatedAt time.Time
}
