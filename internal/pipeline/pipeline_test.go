package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rag-engine/server/internal/chunker"
	"github.com/rag-engine/server/internal/extract"
	"github.com/rag-engine/server/internal/store"
	"github.com/rag-engine/server/internal/vectorstore"
)

type fakeStore struct {
	mu          sync.Mutex
	docs        map[uuid.UUID]*store.Document
	chunks      map[uuid.UUID][]*store.Chunk
	statusLog   map[uuid.UUID][]store.DocumentStatus
	failedCalls int

	// afterLoad runs after GetDocumentByID, before any status update.
	afterLoad func(id uuid.UUID)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		docs:      make(map[uuid.UUID]*store.Document),
		chunks:    make(map[uuid.UUID][]*store.Chunk),
		statusLog: make(map[uuid.UUID][]store.DocumentStatus),
	}
}

func (f *fakeStore) CreateDocument(ctx context.Context, doc *store.Document) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	copied := *doc
	copied.Status = store.StatusUploaded
	f.docs[doc.ID] = &copied
	f.statusLog[doc.ID] = append(f.statusLog[doc.ID], store.StatusUploaded)
	return &copied, nil
}

func (f *fakeStore) GetDocument(ctx context.Context, tenantID, id uuid.UUID) (*store.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.TenantID != tenantID {
		return nil, store.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeStore) GetDocumentByID(ctx context.Context, id uuid.UUID) (*store.Document, error) {
	f.mu.Lock()
	doc, ok := f.docs[id]
	var copied store.Document
	if ok {
		copied = *doc
	}
	hook := f.afterLoad
	f.mu.Unlock()

	if !ok {
		return nil, store.ErrNotFound
	}
	if hook != nil {
		hook(id)
	}
	return &copied, nil
}

func (f *fakeStore) SetDocumentStatus(ctx context.Context, id uuid.UUID, status store.DocumentStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = status
	f.statusLog[id] = append(f.statusLog[id], status)
	return nil
}

func (f *fakeStore) SetDocumentFailed(ctx context.Context, id uuid.UUID, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failedCalls++
	doc, ok := f.docs[id]
	if !ok {
		return store.ErrNotFound
	}
	doc.Status = store.StatusFailed
	doc.ErrorMessage = &message
	f.statusLog[id] = append(f.statusLog[id], store.StatusFailed)
	return nil
}

func (f *fakeStore) SetDocumentPageCount(ctx context.Context, id uuid.UUID, pageCount int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.PageCount = &pageCount
	}
	return nil
}

func (f *fakeStore) DeleteDocument(ctx context.Context, tenantID, id uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok || doc.TenantID != tenantID {
		return store.ErrNotFound
	}
	delete(f.docs, id)
	delete(f.chunks, id)
	return nil
}

func (f *fakeStore) InsertChunksBatch(ctx context.Context, chunks []*store.Chunk) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, chunk := range chunks {
		f.chunks[chunk.DocumentID] = append(f.chunks[chunk.DocumentID], chunk)
	}
	return nil
}

func (f *fakeStore) ChunkIDsByDocument(ctx context.Context, documentID uuid.UUID) ([]uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []uuid.UUID
	for _, chunk := range f.chunks[documentID] {
		ids = append(ids, chunk.ID)
	}
	return ids, nil
}

func (f *fakeStore) document(id uuid.UUID) *store.Document {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		copied := *doc
		return &copied
	}
	return nil
}

func (f *fakeStore) documentChunks(id uuid.UUID) []*store.Chunk {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*store.Chunk(nil), f.chunks[id]...)
}

func (f *fakeStore) statuses(id uuid.UUID) []store.DocumentStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.DocumentStatus(nil), f.statusLog[id]...)
}

type fakeVectors struct {
	mu        sync.Mutex
	added     []vectorstore.Record
	deleted   [][]uuid.UUID
	addErr    error
	deleteErr error
}

func (f *fakeVectors) Add(ctx context.Context, records []vectorstore.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.added = append(f.added, records...)
	return nil
}

func (f *fakeVectors) Search(ctx context.Context, query string, topK int, filter vectorstore.Filter) ([]vectorstore.Result, error) {
	return nil, nil
}

func (f *fakeVectors) DeleteByIDs(ctx context.Context, ids []uuid.UUID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	f.deleted = append(f.deleted, ids)
	return nil
}

func (f *fakeVectors) addedRecords() []vectorstore.Record {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]vectorstore.Record(nil), f.added...)
}

type fakeExtractor struct {
	pageCount int
	err       error
	text      string // overrides passthrough when set
	block     chan struct{}
}

func (f *fakeExtractor) Extract(ctx context.Context, data []byte, contentType string) (*extract.Result, error) {
	if f.block != nil {
		<-f.block
	}
	if f.err != nil {
		return nil, f.err
	}
	text := f.text
	if text == "" {
		text = string(data)
	}
	return &extract.Result{Text: text, PageCount: f.pageCount}, nil
}

func newTestPipeline(t *testing.T, st Store, vectors vectorstore.Store, ex extract.Extractor) *Pipeline {
	t.Helper()
	p := New(st, vectors, ex, chunker.New(800, 200, 10), slog.New(slog.DiscardHandler), Options{
		StorageDir:   t.TempDir(),
		AllowedTypes: []string{"text/plain", "application/pdf"},
		MaxSizeBytes: 1 << 20,
		Workers:      2,
		QueueSize:    8,
	})
	t.Cleanup(p.Close)
	return p
}

func waitTerminal(t *testing.T, st *fakeStore, id uuid.UUID) *store.Document {
	t.Helper()
	require.Eventually(t, func() bool {
		doc := st.document(id)
		return doc != nil && doc.Status.Terminal()
	}, 2*time.Second, 5*time.Millisecond)
	return st.document(id)
}

func TestUpload_SmallTextDocumentBecomesReady(t *testing.T) {
	st := newFakeStore()
	vectors := &fakeVectors{}
	p := newTestPipeline(t, st, vectors, &fakeExtractor{})

	tenantID, userID := uuid.New(), uuid.New()
	data := []byte("This file holds fifty characters of proper text nn")
	require.Len(t, data, 50)

	doc, err := p.Upload(context.Background(), tenantID, userID, Upload{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        data,
	})
	require.NoError(t, err)
	assert.Equal(t, store.StatusUploaded, doc.Status)

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusReady, final.Status)

	chunks := st.documentChunks(doc.ID)
	require.Len(t, chunks, 1)
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, string(data), chunks[0].Content)

	records := vectors.addedRecords()
	require.Len(t, records, 1)
	assert.Equal(t, tenantID, records[0].TenantID)
	assert.Equal(t, doc.ID, records[0].DocumentID)
	assert.Equal(t, "notes.txt", records[0].DocumentName)
	assert.Equal(t, vectorstore.PageUnknown, records[0].PageNumber)
}

func TestUpload_StatusNeverSkipsStages(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{pageCount: 3})

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "report.pdf",
		ContentType: "application/pdf",
		Data:        []byte(strings.Repeat("A full sentence lives here. ", 100)),
	})
	require.NoError(t, err)

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusReady, final.Status)
	require.NotNil(t, final.PageCount)
	assert.Equal(t, 3, *final.PageCount)

	assert.Equal(t, []store.DocumentStatus{
		store.StatusUploaded,
		store.StatusProcessing,
		store.StatusChunking,
		store.StatusEmbedding,
		store.StatusReady,
	}, st.statuses(doc.ID))
}

func TestUpload_ChunkIndicesAreContiguous(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{})

	var b strings.Builder
	for i := 0; i < 80; i++ {
		fmt.Fprintf(&b, "Sentence number %03d pads the document with useful filler text. ", i)
	}

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "long.txt",
		ContentType: "text/plain",
		Data:        []byte(b.String()),
	})
	require.NoError(t, err)

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusReady, final.Status)

	chunks := st.documentChunks(doc.ID)
	require.Greater(t, len(chunks), 1)
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.ChunkIndex)
		assert.Equal(t, chunker.EstimateTokens(chunk.Content), chunk.TokenCount)
	}
}

func TestUpload_ValidationRejectsBadInput(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{})

	tests := []struct {
		name   string
		upload Upload
	}{
		{"empty file", Upload{Filename: "a.txt", ContentType: "text/plain"}},
		{"blank filename", Upload{Filename: "  ", ContentType: "text/plain", Data: []byte("x")}},
		{"unsupported type", Upload{Filename: "a.exe", ContentType: "application/octet-stream", Data: []byte("x")}},
		{"oversized", Upload{Filename: "a.txt", ContentType: "text/plain", Data: make([]byte, 2<<20)}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := p.Upload(context.Background(), uuid.New(), uuid.New(), tt.upload)
			assert.ErrorIs(t, err, ErrInvalidUpload)
		})
	}

	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Empty(t, st.docs, "no document row should exist after rejected uploads")
}

func TestUpload_ExtractionFailureMarksDocumentFailed(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{err: errors.New("corrupt file")})

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "bad.pdf",
		ContentType: "application/pdf",
		Data:        []byte("not really a pdf"),
	})
	require.NoError(t, err, "processing failures must not reach the uploader")

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "corrupt file")
}

func TestUpload_BlankExtractedTextFails(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{text: "   \n  "})

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "empty.pdf",
		ContentType: "application/pdf",
		Data:        []byte("pdf bytes"),
	})
	require.NoError(t, err)

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "no text could be extracted")
}

func TestUpload_EmbeddingFailureMarksDocumentFailed(t *testing.T) {
	st := newFakeStore()
	vectors := &fakeVectors{addErr: errors.New("vector store unavailable")}
	p := newTestPipeline(t, st, vectors, &fakeExtractor{})

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "notes.txt",
		ContentType: "text/plain",
		Data:        []byte("A perfectly fine sentence that should chunk without trouble."),
	})
	require.NoError(t, err)

	final := waitTerminal(t, st, doc.ID)
	require.Equal(t, store.StatusFailed, final.Status)
	require.NotNil(t, final.ErrorMessage)
	assert.Contains(t, *final.ErrorMessage, "vector store unavailable")
}

func TestUpload_FullQueueIsRecordedOnDocument(t *testing.T) {
	st := newFakeStore()
	blocker := &fakeExtractor{block: make(chan struct{})}
	p := New(st, &fakeVectors{}, blocker, chunker.New(800, 200, 10), slog.New(slog.DiscardHandler), Options{
		StorageDir:   t.TempDir(),
		AllowedTypes: []string{"text/plain"},
		Workers:      1,
		QueueSize:    1,
	})
	defer func() {
		close(blocker.block)
		p.Close()
	}()

	upload := func(name string) *store.Document {
		doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
			Filename:    name,
			ContentType: "text/plain",
			Data:        []byte("some text to process"),
		})
		require.NoError(t, err)
		return doc
	}

	// First upload occupies the single worker, second fills the queue.
	upload("first.txt")
	upload("second.txt")

	// Wait until the worker has actually picked up the first task so
	// the queue slot count is deterministic.
	require.Eventually(t, func() bool {
		return len(p.tasks) == 1
	}, time.Second, 5*time.Millisecond)

	third := upload("third.txt")
	assert.Equal(t, store.StatusFailed, third.Status)
	require.NotNil(t, third.ErrorMessage)
	assert.Contains(t, *third.ErrorMessage, "queue is full")
}

func TestRun_DocumentDeletedMidPipelineIsNotAFailure(t *testing.T) {
	st := newFakeStore()
	st.afterLoad = func(id uuid.UUID) {
		st.mu.Lock()
		delete(st.docs, id)
		st.mu.Unlock()
	}
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{})

	_, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "vanishing.txt",
		ContentType: "text/plain",
		Data:        []byte("deleted while being processed"),
	})
	require.NoError(t, err)

	// The run must resolve quietly without recording a failure.
	time.Sleep(100 * time.Millisecond)
	st.mu.Lock()
	defer st.mu.Unlock()
	assert.Zero(t, st.failedCalls)
}

func TestDelete_RemovesVectorsBeforeRows(t *testing.T) {
	st := newFakeStore()
	vectors := &fakeVectors{}
	p := newTestPipeline(t, st, vectors, &fakeExtractor{})

	tenantID := uuid.New()
	doc, err := p.Upload(context.Background(), tenantID, uuid.New(), Upload{
		Filename:    "doomed.txt",
		ContentType: "text/plain",
		Data:        []byte("This document will be deleted after processing finishes."),
	})
	require.NoError(t, err)
	waitTerminal(t, st, doc.ID)

	chunkIDs, err := st.ChunkIDsByDocument(context.Background(), doc.ID)
	require.NoError(t, err)
	require.NotEmpty(t, chunkIDs)

	require.NoError(t, p.Delete(context.Background(), tenantID, doc.ID))

	assert.Nil(t, st.document(doc.ID))
	require.Len(t, vectors.deleted, 1)
	assert.ElementsMatch(t, chunkIDs, vectors.deleted[0])
}

func TestDelete_VectorFailureKeepsRows(t *testing.T) {
	st := newFakeStore()
	vectors := &fakeVectors{}
	p := newTestPipeline(t, st, vectors, &fakeExtractor{})

	tenantID := uuid.New()
	doc, err := p.Upload(context.Background(), tenantID, uuid.New(), Upload{
		Filename:    "sticky.txt",
		ContentType: "text/plain",
		Data:        []byte("This document's vectors refuse to go away on the first try."),
	})
	require.NoError(t, err)
	waitTerminal(t, st, doc.ID)

	vectors.mu.Lock()
	vectors.deleteErr = errors.New("vector delete failed")
	vectors.mu.Unlock()

	err = p.Delete(context.Background(), tenantID, doc.ID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "vector delete failed")
	assert.NotNil(t, st.document(doc.ID), "rows must survive a failed vector delete")
}

func TestDelete_WrongTenantIsNotFound(t *testing.T) {
	st := newFakeStore()
	p := newTestPipeline(t, st, &fakeVectors{}, &fakeExtractor{})

	doc, err := p.Upload(context.Background(), uuid.New(), uuid.New(), Upload{
		Filename:    "private.txt",
		ContentType: "text/plain",
		Data:        []byte("Another tenant must never be able to delete this document."),
	})
	require.NoError(t, err)
	waitTerminal(t, st, doc.ID)

	err = p.Delete(context.Background(), uuid.New(), doc.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotNil(t, st.document(doc.ID))
}
