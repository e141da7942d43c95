package api

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/rag-engine/server/internal/store"
)

type contextKey string

const identityKey contextKey = "identity"

// Identity is the authenticated caller resolved from an API key
type Identity struct {
	TenantID uuid.UUID
	UserID   uuid.UUID
}

// identityFrom returns the caller identity stored by the auth middleware
func identityFrom(ctx context.Context) Identity {
	id, _ := ctx.Value(identityKey).(Identity)
	return id
}

// withAuth resolves the bearer API key to a tenant and user. Every
// request past this point carries an identity; handlers never see an
// unauthenticated request.
func (s *Server) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "missing or malformed authorization header"})
			return
		}

		hash := sha256.Sum256([]byte(strings.TrimSpace(token)))
		key, err := s.store.GetAPIKeyByHash(r.Context(), hex.EncodeToString(hash[:]))
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid api key"})
				return
			}
			writeError(w, s.logger, err)
			return
		}

		identity := Identity{TenantID: key.TenantID, UserID: key.UserID}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey, identity)))
	})
}

// withRateLimit applies the per-tenant token bucket after authentication
func (s *Server) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity := identityFrom(r.Context())
		if !s.limiter.Allow(identity.TenantID.String()) {
			writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limit exceeded"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// withLogging logs one line per request
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"method", r.Method, "path", r.URL.Path,
			"status", rec.status, "duration_ms", time.Since(start).Milliseconds())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
