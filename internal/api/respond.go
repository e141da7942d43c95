package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/rag-engine/server/internal/pipeline"
	"github.com/rag-engine/server/internal/rag"
	"github.com/rag-engine/server/internal/store"
)

type errorResponse struct {
	Error   string             `json:"error"`
	Details []notReadyDocument `json:"details,omitempty"`
}

type notReadyDocument struct {
	DocumentID   string `json:"document_id"`
	DocumentName string `json:"document_name"`
	Status       string `json:"status"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps domain errors onto the HTTP error taxonomy: input
// validation 400, not-found 404, not-ready 409, generation failure 502.
func writeError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var notReady *rag.NotReadyError
	switch {
	case errors.Is(err, pipeline.ErrInvalidUpload), errors.Is(err, rag.ErrInvalidRequest):
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
	case errors.Is(err, store.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
	case errors.As(err, &notReady):
		details := make([]notReadyDocument, 0, len(notReady.Documents))
		for _, d := range notReady.Documents {
			details = append(details, notReadyDocument{
				DocumentID:   d.ID.String(),
				DocumentName: d.Name,
				Status:       string(d.Status),
			})
		}
		writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error(), Details: details})
	case errors.Is(err, rag.ErrGeneration):
		writeJSON(w, http.StatusBadGateway, errorResponse{Error: err.Error()})
	default:
		logger.Error("request failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
	}
}
