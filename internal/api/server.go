package api

import (
	"log/slog"
	"net/http"

	"github.com/rag-engine/server/internal/pipeline"
	"github.com/rag-engine/server/internal/rag"
	"github.com/rag-engine/server/internal/ratelimit"
	"github.com/rag-engine/server/internal/store"
)

// Server wires HTTP routes to the pipeline and orchestrator
type Server struct {
	store          *store.Store
	pipeline       *pipeline.Pipeline
	orchestrator   *rag.Orchestrator
	limiter        *ratelimit.Limiter
	logger         *slog.Logger
	maxUploadBytes int64
}

// NewServer creates a new API server
func NewServer(st *store.Store, p *pipeline.Pipeline, o *rag.Orchestrator, limiter *ratelimit.Limiter, logger *slog.Logger, maxUploadBytes int64) *Server {
	return &Server{
		store:          st,
		pipeline:       p,
		orchestrator:   o,
		limiter:        limiter,
		logger:         logger,
		maxUploadBytes: maxUploadBytes,
	}
}

// Handler returns the routed handler with middleware applied
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/documents", s.handleUploadDocument)
	api.HandleFunc("GET /api/documents", s.handleListDocuments)
	api.HandleFunc("GET /api/documents/{id}", s.handleGetDocument)
	api.HandleFunc("DELETE /api/documents/{id}", s.handleDeleteDocument)
	api.HandleFunc("POST /api/chat", s.handleChat)
	api.HandleFunc("GET /api/conversations", s.handleListConversations)
	api.HandleFunc("GET /api/conversations/{id}", s.handleGetConversation)
	api.HandleFunc("DELETE /api/conversations/{id}", s.handleDeleteConversation)

	mux.Handle("/api/", s.withAuth(s.withRateLimit(api)))

	return s.withLogging(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
