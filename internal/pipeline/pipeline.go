package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/rag-engine/server/internal/chunker"
	"github.com/rag-engine/server/internal/extract"
	"github.com/rag-engine/server/internal/store"
	"github.com/rag-engine/server/internal/vectorstore"
)

// ErrInvalidUpload marks synchronous upload validation failures
var ErrInvalidUpload = errors.New("invalid upload")

// ErrQueueFull is recorded on a document when processing could not be
// scheduled. The upload itself remains durable.
var ErrQueueFull = errors.New("processing queue is full")

// Upload is the caller-provided input for a new document
type Upload struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Store is the persistence surface the pipeline needs. Satisfied by
// *store.Store.
type Store interface {
	CreateDocument(ctx context.Context, doc *store.Document) (*store.Document, error)
	GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*store.Document, error)
	GetDocumentByID(ctx context.Context, id uuid.UUID) (*store.Document, error)
	SetDocumentStatus(ctx context.Context, id uuid.UUID, status store.DocumentStatus) error
	SetDocumentFailed(ctx context.Context, id uuid.UUID, message string) error
	SetDocumentPageCount(ctx context.Context, id uuid.UUID, pageCount int) error
	DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error
	InsertChunksBatch(ctx context.Context, chunks []*store.Chunk) error
	ChunkIDsByDocument(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error)
}

// Pipeline drives documents from upload through extraction, chunking
// and embedding to READY. Processing runs on a bounded worker pool;
// the upload call returns once the document row and file bytes are
// durably written.
type Pipeline struct {
	store        Store
	vectors      vectorstore.Store
	extractor    extract.Extractor
	chunker      *chunker.Chunker
	logger       *slog.Logger
	storageDir   string
	allowedTypes map[string]bool
	maxSizeBytes int64

	tasks chan uuid.UUID
	group *errgroup.Group
}

// Options configures a pipeline
type Options struct {
	StorageDir   string
	AllowedTypes []string
	MaxSizeBytes int64
	Workers      int
	QueueSize    int
}

// New creates a new pipeline
func New(st Store, vectors vectorstore.Store, extractor extract.Extractor, ch *chunker.Chunker, logger *slog.Logger, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	allowed := make(map[string]bool, len(opts.AllowedTypes))
	for _, t := range opts.AllowedTypes {
		allowed[strings.ToLower(t)] = true
	}
	p := &Pipeline{
		store:        st,
		vectors:      vectors,
		extractor:    extractor,
		chunker:      ch,
		logger:       logger,
		storageDir:   opts.StorageDir,
		allowedTypes: allowed,
		maxSizeBytes: opts.MaxSizeBytes,
		tasks:        make(chan uuid.UUID, opts.QueueSize),
	}
	p.startWorkers(opts.Workers)
	return p
}

func (p *Pipeline) startWorkers(n int) {
	g, gctx := errgroup.WithContext(context.Background())
	for i := 0; i < n; i++ {
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case id, ok := <-p.tasks:
					if !ok {
						return nil
					}
					p.run(gctx, id)
				}
			}
		})
	}
	p.group = g
}

// Close stops accepting work and waits for in-flight runs to finish
func (p *Pipeline) Close() {
	close(p.tasks)
	_ = p.group.Wait()
}

// Upload validates the upload, persists the document row and file bytes,
// and schedules background processing. Returns as soon as both are
// durable; processing failures land on the document, never here.
func (p *Pipeline) Upload(ctx context.Context, tenantID, userID uuid.UUID, up Upload) (*store.Document, error) {
	if err := p.validate(up); err != nil {
		return nil, err
	}

	// Collision-resistant stored name, original name kept separately.
	id := uuid.New()
	storedName := id.String() + "_" + filepath.Base(up.Filename)

	if err := os.MkdirAll(p.storageDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}
	path := filepath.Join(p.storageDir, storedName)
	if err := os.WriteFile(path, up.Data, 0644); err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	doc, err := p.store.CreateDocument(ctx, &store.Document{
		ID:           id,
		TenantID:     tenantID,
		UploadedBy:   userID,
		Filename:     storedName,
		OriginalName: up.Filename,
		ContentType:  up.ContentType,
		FileSize:     int64(len(up.Data)),
	})
	if err != nil {
		return nil, err
	}

	p.logger.Info("document uploaded",
		"document_id", doc.ID, "tenant_id", tenantID, "name", doc.OriginalName)

	if err := p.enqueue(doc.ID); err != nil {
		// The scheduling failure must be observable: record it on the
		// document instead of leaving it stuck in UPLOADED.
		p.logger.Error("failed to schedule processing", "document_id", doc.ID, "error", err)
		if ferr := p.store.SetDocumentFailed(ctx, doc.ID, err.Error()); ferr != nil {
			p.logger.Error("failed to record scheduling failure", "document_id", doc.ID, "error", ferr)
		}
		doc.Status = store.StatusFailed
		msg := err.Error()
		doc.ErrorMessage = &msg
	}
	return doc, nil
}

func (p *Pipeline) validate(up Upload) error {
	if len(up.Data) == 0 {
		return fmt.Errorf("%w: file is empty", ErrInvalidUpload)
	}
	if strings.TrimSpace(up.Filename) == "" {
		return fmt.Errorf("%w: file name is missing", ErrInvalidUpload)
	}
	if p.maxSizeBytes > 0 && int64(len(up.Data)) > p.maxSizeBytes {
		return fmt.Errorf("%w: file exceeds %d bytes", ErrInvalidUpload, p.maxSizeBytes)
	}
	contentType := up.ContentType
	if idx := strings.IndexByte(contentType, ';'); idx >= 0 {
		contentType = contentType[:idx]
	}
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if !p.allowedTypes[contentType] {
		return fmt.Errorf("%w: unsupported file type %q", ErrInvalidUpload, up.ContentType)
	}
	return nil
}

func (p *Pipeline) enqueue(id uuid.UUID) error {
	select {
	case p.tasks <- id:
		return nil
	default:
		return ErrQueueFull
	}
}

// run executes one processing pass for a document. Any failure in the
// extract, chunk or embed stages is recorded on the document as FAILED;
// nothing propagates to the uploader. A document deleted mid-run is an
// already-resolved state, not an error.
func (p *Pipeline) run(ctx context.Context, docID uuid.UUID) {
	logger := p.logger.With("document_id", docID)

	doc, err := p.store.GetDocumentByID(ctx, docID)
	if errors.Is(err, store.ErrNotFound) {
		logger.Info("document deleted before processing started")
		return
	}
	if err != nil {
		logger.Error("failed to load document for processing", "error", err)
		return
	}

	if err := p.process(ctx, logger, doc); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Info("document deleted during processing")
			return
		}
		logger.Error("document processing failed", "error", err)
		if ferr := p.store.SetDocumentFailed(ctx, doc.ID, err.Error()); ferr != nil && !errors.Is(ferr, store.ErrNotFound) {
			logger.Error("failed to record processing failure", "error", ferr)
		}
	}
}

func (p *Pipeline) process(ctx context.Context, logger *slog.Logger, doc *store.Document) error {
	// Step 1: extract text from the stored bytes.
	if err := p.store.SetDocumentStatus(ctx, doc.ID, store.StatusProcessing); err != nil {
		return err
	}

	data, err := os.ReadFile(filepath.Join(p.storageDir, doc.Filename))
	if err != nil {
		return fmt.Errorf("failed to read stored file: %w", err)
	}

	extracted, err := p.extractor.Extract(ctx, data, doc.ContentType)
	if err != nil {
		return fmt.Errorf("failed to extract text: %w", err)
	}
	if extracted.PageCount > 0 {
		if err := p.store.SetDocumentPageCount(ctx, doc.ID, extracted.PageCount); err != nil {
			return err
		}
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return errors.New("no text could be extracted from the document")
	}

	// Step 2: chunk the extracted text.
	if err := p.store.SetDocumentStatus(ctx, doc.ID, store.StatusChunking); err != nil {
		return err
	}

	texts := p.chunker.Split(extracted.Text)
	logger.Info("document chunked", "chunks", len(texts), "characters", len(extracted.Text))

	chunks := make([]*store.Chunk, 0, len(texts))
	for i, text := range texts {
		chunks = append(chunks, &store.Chunk{
			ID:         uuid.New(),
			DocumentID: doc.ID,
			ChunkIndex: i,
			Content:    text,
			TokenCount: chunker.EstimateTokens(text),
		})
	}
	if err := p.store.InsertChunksBatch(ctx, chunks); err != nil {
		return fmt.Errorf("failed to persist chunks: %w", err)
	}

	// Step 3: embed and index the chunks.
	if err := p.store.SetDocumentStatus(ctx, doc.ID, store.StatusEmbedding); err != nil {
		return err
	}

	records := make([]vectorstore.Record, 0, len(chunks))
	for _, chunk := range chunks {
		page := vectorstore.PageUnknown
		if chunk.PageNumber != nil {
			page = *chunk.PageNumber
		}
		records = append(records, vectorstore.Record{
			ID:           chunk.ID,
			Text:         chunk.Content,
			TenantID:     doc.TenantID,
			DocumentID:   doc.ID,
			DocumentName: doc.OriginalName,
			ChunkIndex:   chunk.ChunkIndex,
			PageNumber:   page,
		})
	}
	if err := p.vectors.Add(ctx, records); err != nil {
		return fmt.Errorf("failed to store embeddings: %w", err)
	}

	if err := p.store.SetDocumentStatus(ctx, doc.ID, store.StatusReady); err != nil {
		return err
	}

	logger.Info("document processing complete", "chunks", len(chunks))
	return nil
}

// Delete removes a document with its chunks and vectors, scoped to the
// tenant. Vectors go first; if that fails the relational rows stay put
// and the failure is surfaced rather than leaving orphaned vectors.
func (p *Pipeline) Delete(ctx context.Context, tenantID, docID uuid.UUID) error {
	doc, err := p.store.GetDocument(ctx, tenantID, docID)
	if err != nil {
		return err
	}

	chunkIDs, err := p.store.ChunkIDsByDocument(ctx, docID)
	if err != nil {
		return err
	}
	if len(chunkIDs) > 0 {
		if err := p.vectors.DeleteByIDs(ctx, chunkIDs); err != nil {
			return fmt.Errorf("failed to delete vectors: %w", err)
		}
	}

	if err := p.store.DeleteDocument(ctx, tenantID, docID); err != nil {
		return err
	}

	if err := os.Remove(filepath.Join(p.storageDir, doc.Filename)); err != nil && !os.IsNotExist(err) {
		p.logger.Warn("could not delete stored file", "document_id", docID, "error", err)
	}

	p.logger.Info("document deleted", "document_id", docID, "tenant_id", tenantID)
	return nil
}
