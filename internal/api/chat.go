package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rag-engine/server/internal/rag"
)

type chatRequest struct {
	Question       string      `json:"question"`
	DocumentIDs    []uuid.UUID `json:"document_ids"`
	ConversationID *uuid.UUID  `json:"conversation_id,omitempty"`
}

type sourceResponse struct {
	DocumentID      uuid.UUID `json:"document_id"`
	DocumentName    string    `json:"document_name"`
	ChunkContent    string    `json:"chunk_content"`
	ChunkIndex      int       `json:"chunk_index"`
	PageNumber      *int      `json:"page_number,omitempty"`
	SimilarityScore float64   `json:"similarity_score"`
}

type chatResponse struct {
	ConversationID uuid.UUID        `json:"conversation_id"`
	Answer         string           `json:"answer"`
	Sources        []sourceResponse `json:"sources"`
	Timestamp      time.Time        `json:"timestamp"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: malformed request body", rag.ErrInvalidRequest))
		return
	}

	resp, err := s.orchestrator.Chat(r.Context(), rag.Request{
		TenantID:       identity.TenantID,
		UserID:         identity.UserID,
		Question:       req.Question,
		DocumentIDs:    req.DocumentIDs,
		ConversationID: req.ConversationID,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	sources := make([]sourceResponse, 0, len(resp.Citations))
	for _, c := range resp.Citations {
		sources = append(sources, sourceResponse{
			DocumentID:      c.DocumentID,
			DocumentName:    c.DocumentName,
			ChunkContent:    c.ChunkContent,
			ChunkIndex:      c.ChunkIndex,
			PageNumber:      c.PageNumber,
			SimilarityScore: c.SimilarityScore,
		})
	}

	writeJSON(w, http.StatusOK, chatResponse{
		ConversationID: resp.ConversationID,
		Answer:         resp.Answer,
		Sources:        sources,
		Timestamp:      resp.Timestamp,
	})
}

type messageResponse struct {
	ID        uuid.UUID `json:"id"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

type conversationResponse struct {
	ID          uuid.UUID         `json:"id"`
	Title       *string           `json:"title,omitempty"`
	Messages    []messageResponse `json:"messages,omitempty"`
	DocumentIDs []uuid.UUID       `json:"document_ids,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	convs, err := s.store.ListConversations(r.Context(), identity.TenantID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	resp := make([]conversationResponse, 0, len(convs))
	for _, conv := range convs {
		resp = append(resp, conversationResponse{
			ID:        conv.ID,
			Title:     conv.Title,
			CreatedAt: conv.CreatedAt,
			UpdatedAt: conv.UpdatedAt,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid conversation id"})
		return
	}

	conv, err := s.store.GetConversation(r.Context(), identity.TenantID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	msgs, err := s.store.ListMessages(r.Context(), conv.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	docIDs, err := s.store.ConversationDocumentIDs(r.Context(), conv.ID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	msgResps := make([]messageResponse, 0, len(msgs))
	for _, msg := range msgs {
		msgResps = append(msgResps, messageResponse{
			ID:        msg.ID,
			Role:      msg.Role,
			Content:   msg.Content,
			CreatedAt: msg.CreatedAt,
		})
	}

	writeJSON(w, http.StatusOK, conversationResponse{
		ID:          conv.ID,
		Title:       conv.Title,
		Messages:    msgResps,
		DocumentIDs: docIDs,
		CreatedAt:   conv.CreatedAt,
		UpdatedAt:   conv.UpdatedAt,
	})
}

func (s *Server) handleDeleteConversation(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid conversation id"})
		return
	}

	if err := s.store.DeleteConversation(r.Context(), identity.TenantID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
