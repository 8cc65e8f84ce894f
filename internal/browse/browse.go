// Package browse implements the public, read-only conversation-browsing
// surface supplemented from the original implementation's /browse
// endpoints (see SPEC_FULL.md): anonymous visibility into conversations and
// their message history, for observability and debugging.
package browse

import (
	"database/sql"
	"fmt"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
)

// ConversationSummary is one row of the public conversation directory.
type ConversationSummary struct {
	ID           string   `json:"id"`
	Name         string   `json:"name"`
	Type         string   `json:"type"`
	Members      []string `json:"members"`
	MessageCount int      `json:"message_count"`
	CreatedAt    float64  `json:"created_at"`
}

// Message is a browse-surface view of a single message.
type Message struct {
	ID        string  `json:"id"`
	From      string  `json:"from_agent"`
	To        string  `json:"to_agent,omitempty"`
	Content   string  `json:"content"`
	Timestamp float64 `json:"timestamp"`
}

// Store provides read-only cross-conversation queries.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

// ListAllConversations returns every conversation with its member list and
// message count, newest first. No authentication required.
func (s *Store) ListAllConversations() ([]*ConversationSummary, error) {
	rows, err := s.db.DB.Query("SELECT id, name, type, created_at FROM conversations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*ConversationSummary
	for rows.Next() {
		c := &ConversationSummary{}
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, c := range out {
		members, err := s.members(c.ID)
		if err != nil {
			return nil, err
		}
		c.Members = members
		if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", c.ID).Scan(&c.MessageCount); err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
	}
	return out, nil
}

func (s *Store) members(conversationID string) ([]string, error) {
	rows, err := s.db.DB.Query("SELECT agent_id FROM conversation_members WHERE conversation_id = ?", conversationID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// BrowseConversation returns a single conversation's messages, ascending,
// capped at limit. No authentication or membership check required — this
// is the public observability surface.
func (s *Store) BrowseConversation(id string, limit int) (*ConversationSummary, []*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	c := &ConversationSummary{}
	err := s.db.DB.QueryRow("SELECT id, name, type, created_at FROM conversations WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Type, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil, apierr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get conversation: %w", err)
	}
	members, err := s.members(id)
	if err != nil {
		return nil, nil, err
	}
	c.Members = members

	rows, err := s.db.DB.Query(
		"SELECT id, from_agent, to_agent, content, timestamp FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC LIMIT ?", id, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{}
		var to sql.NullString
		if err := rows.Scan(&m.ID, &m.From, &to, &m.Content, &m.Timestamp); err != nil {
			return nil, nil, err
		}
		m.To = to.String
		msgs = append(msgs, m)
	}
	c.MessageCount = len(msgs)
	return c, msgs, rows.Err()
}
