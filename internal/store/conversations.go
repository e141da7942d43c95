package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const conversationColumns = `id, tenant_id, created_by, title, created_at, updated_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var conv Conversation
	err := row.Scan(
		&conv.ID, &conv.TenantID, &conv.CreatedBy, &conv.Title,
		&conv.CreatedAt, &conv.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// CreateConversation creates a new untitled conversation for the tenant
func (s *Store) CreateConversation(ctx context.Context, tenantID, createdBy uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`INSERT INTO conversations (id, tenant_id, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING `+conversationColumns,
		uuid.New(), tenantID, createdBy,
	)
	conv, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("failed to create conversation: %w", err)
	}
	return conv, nil
}

// GetConversation retrieves a conversation by id, scoped to the tenant
func (s *Store) GetConversation(ctx context.Context, tenantID, id uuid.UUID) (*Conversation, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	conv, err := scanConversation(row)
	if err == pgx.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return conv, nil
}

// ListConversations retrieves all of a tenant's conversations, most
// recently active first
func (s *Store) ListConversations(ctx context.Context, tenantID uuid.UUID) ([]*Conversation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE tenant_id = $1 ORDER BY updated_at DESC`,
		tenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	var convs []*Conversation
	for rows.Next() {
		conv, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		convs = append(convs, conv)
	}
	return convs, rows.Err()
}

// DeleteConversation deletes a conversation, scoped to the tenant.
// Messages cascade.
func (s *Store) DeleteConversation(ctx context.Context, tenantID, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversations WHERE id = $1 AND tenant_id = $2`,
		id, tenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordChatTurn persists one completed exchange in a single
// transaction: the user question, the assistant answer, the title when
// one is supplied and none is set yet, and the conversation's document
// scope. A partial turn can never land; either everything commits or
// nothing does.
func (s *Store) RecordChatTurn(ctx context.Context, conversationID uuid.UUID, question, answer, title string, documentIDs []uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, m := range []struct{ role, content string }{
		{"user", question},
		{"assistant", answer},
	} {
		if _, err := tx.Exec(ctx,
			`INSERT INTO messages (id, conversation_id, role, content)
			 VALUES ($1, $2, $3, $4)`,
			uuid.New(), conversationID, m.role, m.content,
		); err != nil {
			return fmt.Errorf("failed to append %s message: %w", m.role, err)
		}
	}

	if title != "" {
		if _, err := tx.Exec(ctx,
			`UPDATE conversations SET title = $2
			 WHERE id = $1 AND (title IS NULL OR title = '')`,
			conversationID, title,
		); err != nil {
			return fmt.Errorf("failed to set conversation title: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM conversation_documents WHERE conversation_id = $1`,
		conversationID,
	); err != nil {
		return fmt.Errorf("failed to clear conversation documents: %w", err)
	}
	for _, docID := range documentIDs {
		if _, err := tx.Exec(ctx,
			`INSERT INTO conversation_documents (conversation_id, document_id)
			 VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			conversationID, docID,
		); err != nil {
			return fmt.Errorf("failed to set conversation documents: %w", err)
		}
	}

	if _, err := tx.Exec(ctx,
		`UPDATE conversations SET updated_at = NOW() WHERE id = $1`,
		conversationID,
	); err != nil {
		return fmt.Errorf("failed to touch conversation: %w", err)
	}

	return tx.Commit(ctx)
}

// ConversationDocumentIDs returns the document ids associated with a
// conversation
func (s *Store) ConversationDocumentIDs(ctx context.Context, conversationID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT document_id FROM conversation_documents WHERE conversation_id = $1`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversation documents: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ListMessages returns a conversation's messages in append order,
// keyed on the monotonic seq column
func (s *Store) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*Message, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = $1 ORDER BY seq`,
		conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		msgs = append(msgs, &msg)
	}
	return msgs, rows.Err()
}
