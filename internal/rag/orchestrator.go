package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rag-engine/server/internal/generator"
	"github.com/rag-engine/server/internal/store"
	"github.com/rag-engine/server/internal/vectorstore"
)

// ErrInvalidRequest marks chat requests rejected before any retrieval
// or generation work starts
var ErrInvalidRequest = errors.New("invalid chat request")

// ErrGeneration marks a collaborator failure during generation. The
// request is retryable; no conversation state was mutated.
var ErrGeneration = errors.New("generation failed")

// defaultSystemPrompt is the fixed system instruction sent with every
// generation request.
const defaultSystemPrompt = "You are a helpful assistant that answers questions based on the user's uploaded documents. " +
	"Ground every answer in the provided context and cite the sources you used. " +
	"If the context does not contain the answer, say so instead of guessing."

// NotReadyDocument identifies a document that blocked a chat request
// and its current status.
type NotReadyDocument struct {
	ID     uuid.UUID
	Name   string
	Status store.DocumentStatus
}

// NotReadyError is returned when the request's document scope contains
// documents that are not yet READY.
type NotReadyError struct {
	Documents []NotReadyDocument
}

func (e *NotReadyError) Error() string {
	parts := make([]string, 0, len(e.Documents))
	for _, d := range e.Documents {
		parts = append(parts, fmt.Sprintf("%s (%s)", d.Name, d.Status))
	}
	return "documents not ready for querying: " + strings.Join(parts, ", ")
}

// Request is one chat turn: a question scoped to a set of documents,
// optionally continuing an existing conversation.
type Request struct {
	TenantID       uuid.UUID
	UserID         uuid.UUID
	Question       string
	DocumentIDs    []uuid.UUID
	ConversationID *uuid.UUID
}

// Citation points from an answer back to a retrieved chunk
type Citation struct {
	DocumentID      uuid.UUID
	DocumentName    string
	ChunkContent    string
	ChunkIndex      int
	PageNumber      *int
	SimilarityScore float64
}

// Response is the result of one chat turn
type Response struct {
	ConversationID uuid.UUID
	Answer         string
	Citations      []Citation
	Timestamp      time.Time
}

// Options configures the orchestrator
type Options struct {
	TopK            int
	MaxHistory      int
	CitationPreview int
	TitleMaxLength  int
}

// Store is the persistence surface the orchestrator needs. Satisfied
// by *store.Store.
type Store interface {
	ListDocumentsByIDs(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) ([]*store.Document, error)
	GetConversation(ctx context.Context, tenantID, id uuid.UUID) (*store.Conversation, error)
	CreateConversation(ctx context.Context, tenantID, createdBy uuid.UUID) (*store.Conversation, error)
	ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*store.Message, error)
	RecordChatTurn(ctx context.Context, conversationID uuid.UUID, question, answer, title string, documentIDs []uuid.UUID) error
}

// Orchestrator runs the per-request RAG flow: validate readiness,
// retrieve, assemble context, generate, cite and persist.
type Orchestrator struct {
	store   Store
	vectors vectorstore.Store
	gen     generator.Generator
	logger  *slog.Logger
	opts    Options
}

// New creates a new orchestrator
func New(st Store, vectors vectorstore.Store, gen generator.Generator, logger *slog.Logger, opts Options) *Orchestrator {
	if opts.TopK <= 0 {
		opts.TopK = 5
	}
	if opts.MaxHistory <= 0 {
		opts.MaxHistory = 10
	}
	if opts.CitationPreview <= 0 {
		opts.CitationPreview = 200
	}
	if opts.TitleMaxLength <= 0 {
		opts.TitleMaxLength = 100
	}
	return &Orchestrator{
		store:   st,
		vectors: vectors,
		gen:     gen,
		logger:  logger,
		opts:    opts,
	}
}

// Chat answers a question grounded in the requested documents and
// appends the turn to a conversation.
func (o *Orchestrator) Chat(ctx context.Context, req Request) (*Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, fmt.Errorf("%w: question is blank", ErrInvalidRequest)
	}
	if len(req.DocumentIDs) == 0 {
		return nil, fmt.Errorf("%w: document scope is empty", ErrInvalidRequest)
	}

	if err := o.validateDocuments(ctx, req.TenantID, req.DocumentIDs); err != nil {
		return nil, err
	}

	// Retrieval is always constrained by tenant and document scope;
	// the store rejects anything less.
	results, err := o.vectors.Search(ctx, req.Question, o.opts.TopK, vectorstore.Filter{
		TenantID:    req.TenantID,
		DocumentIDs: req.DocumentIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}

	o.logger.Debug("chunks retrieved", "count", len(results), "tenant_id", req.TenantID)

	conv, err := o.resolveConversation(ctx, req)
	if err != nil {
		return nil, err
	}

	history, err := o.buildHistory(ctx, conv.ID)
	if err != nil {
		return nil, err
	}

	contextBlock := buildContext(results)
	turns := append(history, generator.Turn{
		Role:    generator.RoleUser,
		Content: buildAugmentedPrompt(req.Question, contextBlock),
	})

	answer, err := o.gen.Generate(ctx, defaultSystemPrompt, turns)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	citations := o.buildCitations(results)

	// Persist only after a successful generation, and atomically: both
	// turns, the first-turn title and the document scope commit
	// together. The raw question is what gets stored, not the augmented
	// prompt.
	title := ""
	if conv.Title == nil || *conv.Title == "" {
		title = truncate(req.Question, o.opts.TitleMaxLength)
	}
	if err := o.store.RecordChatTurn(ctx, conv.ID, req.Question, answer, title, req.DocumentIDs); err != nil {
		return nil, err
	}

	o.logger.Info("chat turn complete", "conversation_id", conv.ID, "citations", len(citations))

	return &Response{
		ConversationID: conv.ID,
		Answer:         answer,
		Citations:      citations,
		Timestamp:      time.Now().UTC(),
	}, nil
}

// validateDocuments resolves the document scope within the tenant and
// requires every document to be READY. Unresolved ids fail generically
// so the existence of another tenant's documents never leaks.
func (o *Orchestrator) validateDocuments(ctx context.Context, tenantID uuid.UUID, ids []uuid.UUID) error {
	docs, err := o.store.ListDocumentsByIDs(ctx, tenantID, ids)
	if err != nil {
		return err
	}
	if len(docs) != len(ids) {
		return fmt.Errorf("one or more documents not found: %w", store.ErrNotFound)
	}

	var notReady []NotReadyDocument
	for _, doc := range docs {
		if doc.Status != store.StatusReady {
			notReady = append(notReady, NotReadyDocument{
				ID:     doc.ID,
				Name:   doc.OriginalName,
				Status: doc.Status,
			})
		}
	}
	if len(notReady) > 0 {
		return &NotReadyError{Documents: notReady}
	}
	return nil
}

// resolveConversation reuses the supplied conversation when it resolves
// within the tenant, otherwise creates a new one.
func (o *Orchestrator) resolveConversation(ctx context.Context, req Request) (*store.Conversation, error) {
	if req.ConversationID != nil {
		conv, err := o.store.GetConversation(ctx, req.TenantID, *req.ConversationID)
		if err == nil {
			return conv, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}
	return o.store.CreateConversation(ctx, req.TenantID, req.UserID)
}

// buildHistory maps the last N persisted messages to role-tagged turns.
// Unknown roles are skipped.
func (o *Orchestrator) buildHistory(ctx context.Context, conversationID uuid.UUID) ([]generator.Turn, error) {
	msgs, err := o.store.ListMessages(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	start := 0
	if len(msgs) > o.opts.MaxHistory {
		start = len(msgs) - o.opts.MaxHistory
	}

	turns := make([]generator.Turn, 0, len(msgs)-start)
	for _, msg := range msgs[start:] {
		role, ok := generator.ParseRole(msg.Role)
		if !ok {
			continue
		}
		turns = append(turns, generator.Turn{Role: role, Content: msg.Content})
	}
	return turns, nil
}

// buildCitations derives one citation per retrieved chunk, preserving
// retrieval order and passing similarity scores through unmodified.
func (o *Orchestrator) buildCitations(results []vectorstore.Result) []Citation {
	citations := make([]Citation, 0, len(results))
	for _, res := range results {
		var page *int
		if res.PageNumber != vectorstore.PageUnknown {
			p := res.PageNumber
			page = &p
		}
		citations = append(citations, Citation{
			DocumentID:      res.DocumentID,
			DocumentName:    res.DocumentName,
			ChunkContent:    truncate(res.Text, o.opts.CitationPreview),
			ChunkIndex:      res.ChunkIndex,
			PageNumber:      page,
			SimilarityScore: res.Score,
		})
	}
	return citations
}
