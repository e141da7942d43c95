package api

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/rag-engine/server/internal/pipeline"
	"github.com/rag-engine/server/internal/store"
)

type documentResponse struct {
	ID           uuid.UUID `json:"id"`
	OriginalName string    `json:"original_name"`
	ContentType  string    `json:"content_type"`
	FileSize     int64     `json:"file_size"`
	PageCount    *int      `json:"page_count,omitempty"`
	Status       string    `json:"status"`
	ErrorMessage *string   `json:"error_message,omitempty"`
	ChunkCount   int       `json:"chunk_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (s *Server) documentResponse(r *http.Request, doc *store.Document) documentResponse {
	chunkCount, err := s.store.CountChunksByDocument(r.Context(), doc.ID)
	if err != nil {
		s.logger.Warn("could not count chunks", "document_id", doc.ID, "error", err)
		chunkCount = 0
	}
	return documentResponse{
		ID:           doc.ID,
		OriginalName: doc.OriginalName,
		ContentType:  doc.ContentType,
		FileSize:     doc.FileSize,
		PageCount:    doc.PageCount,
		Status:       string(doc.Status),
		ErrorMessage: doc.ErrorMessage,
		ChunkCount:   chunkCount,
		CreatedAt:    doc.CreatedAt,
		UpdatedAt:    doc.UpdatedAt,
	}
}

func (s *Server) handleUploadDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %v", pipeline.ErrInvalidUpload, err))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: missing file field", pipeline.ErrInvalidUpload))
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, s.logger, fmt.Errorf("%w: %v", pipeline.ErrInvalidUpload, err))
		return
	}

	doc, err := s.pipeline.Upload(r.Context(), identity.TenantID, identity.UserID, pipeline.Upload{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
	})
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, s.documentResponse(r, doc))
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	docs, err := s.store.ListDocuments(r.Context(), identity.TenantID)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	resp := make([]documentResponse, 0, len(docs))
	for _, doc := range docs {
		resp = append(resp, s.documentResponse(r, doc))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid document id"})
		return
	}

	doc, err := s.store.GetDocument(r.Context(), identity.TenantID, id)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, s.documentResponse(r, doc))
}

func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	identity := identityFrom(r.Context())

	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid document id"})
		return
	}

	if err := s.pipeline.Delete(r.Context(), identity.TenantID, id); err != nil {
		writeError(w, s.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
