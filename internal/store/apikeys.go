package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// GetAPIKeyByHash resolves an API key from the SHA-256 hash of its key
// material. Returns ErrNotFound for unknown keys.
func (s *Store) GetAPIKeyByHash(ctx context.Context, keyHash string) (*APIKey, error) {
	var key APIKey
	err := s.pool.QueryRow(ctx,
		`SELECT id, tenant_id, user_id, key_hash, name, created_at
		 FROM api_keys WHERE key_hash = $1`,
		keyHash,
	).Scan(&key.ID, &key.TenantID, &key.UserID, &key.KeyHash, &key.Name, &key.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get api key: %w", err)
	}
	return &key, nil
}
