package chat

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for conversations
// and messages. Participants are a text array; reactions are a JSONB
// document on the message row.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// InsertConversation persists a new conversation.
func (r *Repository) InsertConversation(ctx context.Context, c *Conversation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, name, participants, team_id, created_by, created_at)
		 VALUES ($1, $2, $3, NULLIF($4, ''), $5, $6)`,
		c.ID, c.Name, c.Participants, c.TeamID, c.CreatedBy, c.CreatedAt)
	return err
}

const conversationColumns = `id, name, participants, COALESCE(team_id, ''), created_by, created_at`

func scanConversation(row pgx.Row) (*Conversation, error) {
	var c Conversation
	err := row.Scan(&c.ID, &c.Name, &c.Participants, &c.TeamID, &c.CreatedBy, &c.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat: conversation: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &c, nil
}

// GetConversation loads one conversation by ID.
func (r *Repository) GetConversation(ctx context.Context, id string) (*Conversation, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
	return scanConversation(row)
}

// ListConversations returns the conversations a user participates in.
func (r *Repository) ListConversations(ctx context.Context, userID string) ([]Conversation, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+conversationColumns+` FROM conversations WHERE $1 = ANY(participants) ORDER BY created_at DESC`,
		userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

const messageColumns = `id, conversation_id, sender_id, text, reactions, is_deleted, edited_at, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Text, &m.Reactions, &m.IsDeleted, &m.EditedAt, &m.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("chat: message: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &m, nil
}

// InsertMessage persists a new message.
func (r *Repository) InsertMessage(ctx context.Context, m *Message) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO messages (id, conversation_id, sender_id, text, reactions, is_deleted, edited_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.ConversationID, m.SenderID, m.Text, m.Reactions, m.IsDeleted, m.EditedAt, m.CreatedAt)
	return err
}

// GetMessage loads one message by ID.
func (r *Repository) GetMessage(ctx context.Context, id string) (*Message, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = $1`, id)
	return scanMessage(row)
}

// ListMessages returns the most recent messages of a conversation.
func (r *Repository) ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+messageColumns+` FROM messages
		 WHERE conversation_id = $1 AND NOT is_deleted
		 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// UpdateMessage rewrites a message row.
func (r *Repository) UpdateMessage(ctx context.Context, m *Message) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE messages SET text = $2, reactions = $3, is_deleted = $4, edited_at = $5 WHERE id = $1`,
		m.ID, m.Text, m.Reactions, m.IsDeleted, m.EditedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("chat: message %s: %w", m.ID, httpx.ErrNotFound)
	}
	return nil
}
