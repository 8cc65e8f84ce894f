// Package messaging implements conversations (DM and group), membership,
// message send/inbox/history, and the legacy-compatible unread tracking
// described in spec.md §4.3.
package messaging

import (
	"database/sql"
	"fmt"
	"sort"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/google/uuid"
)

// Conversation is a DM or group channel.
type Conversation struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Type      string   `json:"type"`
	CreatedBy string   `json:"created_by,omitempty"`
	CreatedAt float64  `json:"created_at"`
	Members   []string `json:"members,omitempty"`
}

// Message is a single appended message, global (not per-recipient) in its
// read state — see spec.md §9 open question 1.
type Message struct {
	ID             string  `json:"id"`
	ConversationID string  `json:"conversation_id,omitempty"`
	From           string  `json:"from_agent"`
	To             string  `json:"to_agent,omitempty"`
	Content        string  `json:"content"`
	Timestamp      float64 `json:"timestamp"`
	Read           bool    `json:"read"`
}

// Store provides messaging operations over the shared relational backend.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

// findOrCreateDM resolves the unique conversation for an unordered pair of
// agents, creating it if absent. Names are sorted first so (A,B) and (B,A)
// resolve to the same row.
func findOrCreateDM(tx *sql.Tx, a, b string) (string, error) {
	if a > b {
		a, b = b, a
	}
	var id string
	err := tx.QueryRow(`
		SELECT c.id FROM conversations c
		JOIN conversation_members m1 ON c.id = m1.conversation_id AND m1.agent_id = ?
		JOIN conversation_members m2 ON c.id = m2.conversation_id AND m2.agent_id = ?
		WHERE c.type = 'dm'`, a, b).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("find dm: %w", err)
	}

	now := store.Now()
	id = uuid.New().String()
	if _, err := tx.Exec("INSERT INTO conversations (id, name, type, created_at) VALUES (?, ?, 'dm', ?)",
		id, a+" ↔ "+b, now); err != nil {
		return "", fmt.Errorf("create dm: %w", err)
	}
	for _, agent := range []string{a, b} {
		if _, err := tx.Exec(
			"INSERT INTO conversation_members (conversation_id, agent_id, joined_at) VALUES (?, ?, ?)",
			id, agent, now); err != nil {
			return "", fmt.Errorf("add dm member: %w", err)
		}
	}
	return id, nil
}

// CreateGroup creates a group conversation containing the caller plus any
// named initial members.
func (s *Store) CreateGroup(name, creator string, members []string) (*Conversation, error) {
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	conv := &Conversation{
		ID:        uuid.New().String(),
		Name:      name,
		Type:      "group",
		CreatedBy: creator,
		CreatedAt: store.Now(),
	}
	all := append([]string{creator}, members...)
	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO conversations (id, name, type, created_by, created_at) VALUES (?,?,'group',?,?)",
			conv.ID, conv.Name, conv.CreatedBy, conv.CreatedAt); err != nil {
			return fmt.Errorf("create conversation: %w", err)
		}
		seen := map[string]bool{}
		for _, m := range all {
			if m == "" || seen[m] {
				continue
			}
			seen[m] = true
			if _, err := tx.Exec(
				"INSERT OR IGNORE INTO conversation_members (conversation_id, agent_id, joined_at) VALUES (?, ?, ?)",
				conv.ID, m, conv.CreatedAt); err != nil {
				return fmt.Errorf("add member: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

// ListConversations returns every conversation the caller belongs to.
func (s *Store) ListConversations(caller string) ([]*Conversation, error) {
	rows, err := s.db.DB.Query(`
		SELECT c.id, c.name, c.type, c.created_by, c.created_at
		FROM conversations c
		JOIN conversation_members m ON c.id = m.conversation_id
		WHERE m.agent_id = ?
		ORDER BY c.created_at DESC`, caller)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []*Conversation
	for rows.Next() {
		c := &Conversation{}
		var createdBy sql.NullString
		if err := rows.Scan(&c.ID, &c.Name, &c.Type, &createdBy, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.CreatedBy = createdBy.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// GetConversation returns a conversation with its member list. The caller
// must be a member.
func (s *Store) GetConversation(id, caller string) (*Conversation, error) {
	c := &Conversation{}
	var createdBy sql.NullString
	err := s.db.DB.QueryRow("SELECT id, name, type, created_by, created_at FROM conversations WHERE id = ?", id).
		Scan(&c.ID, &c.Name, &c.Type, &createdBy, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("conversation not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	c.CreatedBy = createdBy.String

	if err := s.requireMember(id, caller); err != nil {
		return nil, err
	}

	rows, err := s.db.DB.Query("SELECT agent_id FROM conversation_members WHERE conversation_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m string
		if err := rows.Scan(&m); err != nil {
			return nil, err
		}
		c.Members = append(c.Members, m)
	}
	return c, rows.Err()
}

func (s *Store) requireMember(conversationID, agent string) error {
	var dummy int
	err := s.db.DB.QueryRow(
		"SELECT 1 FROM conversation_members WHERE conversation_id = ? AND agent_id = ?", conversationID, agent).Scan(&dummy)
	if err == sql.ErrNoRows {
		return apierr.Forbidden("not a member of this conversation")
	}
	if err != nil {
		return fmt.Errorf("check membership: %w", err)
	}
	return nil
}

// SendDM is the legacy POST /send path: resolves (or creates) the DM
// conversation for (from,to) and appends a message to it.
func (s *Store) SendDM(from, to, content string) (*Message, error) {
	if to == "" || content == "" {
		return nil, apierr.Validation("to and content are required")
	}
	msg := &Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: store.Now(),
	}
	err := s.db.WithTx(func(tx *sql.Tx) error {
		cid, err := findOrCreateDM(tx, from, to)
		if err != nil {
			return err
		}
		msg.ConversationID = cid
		_, err = tx.Exec(
			"INSERT INTO messages (id, conversation_id, from_agent, to_agent, content, timestamp, read) VALUES (?,?,?,?,?,?,0)",
			msg.ID, msg.ConversationID, msg.From, msg.To, msg.Content, msg.Timestamp)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("send dm: %w", err)
	}
	return msg, nil
}

// SendToConversation appends a message to an existing conversation. The
// sender must already be a member.
func (s *Store) SendToConversation(conversationID, from, content string) (*Message, error) {
	if content == "" {
		return nil, apierr.Validation("content is required")
	}
	if err := s.requireMember(conversationID, from); err != nil {
		return nil, err
	}
	msg := &Message{
		ID:             uuid.New().String(),
		ConversationID: conversationID,
		From:           from,
		Content:        content,
		Timestamp:      store.Now(),
	}
	_, err := s.db.DB.Exec(
		"INSERT INTO messages (id, conversation_id, from_agent, content, timestamp, read) VALUES (?,?,?,?,?,0)",
		msg.ID, msg.ConversationID, msg.From, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("send message: %w", err)
	}
	return msg, nil
}

// Invite adds a member to a group conversation. Inviting into a DM is
// forbidden — the pair is fixed at creation.
func (s *Store) Invite(conversationID, caller, newMember string) error {
	var convType string
	err := s.db.DB.QueryRow("SELECT type FROM conversations WHERE id = ?", conversationID).Scan(&convType)
	if err == sql.ErrNoRows {
		return apierr.NotFound("conversation not found")
	}
	if err != nil {
		return fmt.Errorf("lookup conversation: %w", err)
	}
	if convType == "dm" {
		return apierr.Forbidden("cannot invite into a direct-message conversation")
	}
	if err := s.requireMember(conversationID, caller); err != nil {
		return err
	}
	_, err = s.db.DB.Exec(
		"INSERT OR IGNORE INTO conversation_members (conversation_id, agent_id, joined_at) VALUES (?, ?, ?)",
		conversationID, newMember, store.Now())
	if err != nil {
		return fmt.Errorf("invite member: %w", err)
	}
	return nil
}

// Leave removes the caller's membership row. Idempotent.
func (s *Store) Leave(conversationID, caller string) error {
	_, err := s.db.DB.Exec(
		"DELETE FROM conversation_members WHERE conversation_id = ? AND agent_id = ?", conversationID, caller)
	if err != nil {
		return fmt.Errorf("leave conversation: %w", err)
	}
	return nil
}

// ConversationMessages returns a conversation's messages in ascending
// timestamp order. The caller must be a member.
func (s *Store) ConversationMessages(conversationID, caller string, limit int) ([]*Message, error) {
	if err := s.requireMember(conversationID, caller); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.DB.Query(`
		SELECT id, conversation_id, from_agent, to_agent, content, timestamp, read
		FROM messages WHERE conversation_id = ? ORDER BY timestamp ASC LIMIT ?`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversation messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// Inbox returns unread messages in conversations the caller belongs to
// whose author is not the caller, ascending by timestamp, optionally
// filtered to strictly after `since`.
func (s *Store) Inbox(caller string, since float64, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `
		SELECT m.id, m.conversation_id, m.from_agent, m.to_agent, m.content, m.timestamp, m.read
		FROM messages m
		JOIN conversation_members cm ON cm.conversation_id = m.conversation_id AND cm.agent_id = ?
		WHERE m.read = 0 AND m.from_agent != ?`
	args := []interface{}{caller, caller}
	if since > 0 {
		query += " AND m.timestamp > ?"
		args = append(args, since)
	}
	query += " ORDER BY m.timestamp ASC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list inbox: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// MarkRead sets the message's global read flag. It does not verify the
// caller is a recipient or member — see spec.md §9 open question 2.
func (s *Store) MarkRead(messageID string) error {
	res, err := s.db.DB.Exec("UPDATE messages SET read = 1 WHERE id = ?", messageID)
	if err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apierr.NotFound("message not found")
	}
	return nil
}

// History returns up to limit messages between the caller and withAgent (if
// given) or every message where the caller is sender or recipient,
// reverse-chronological.
func (s *Store) History(caller, withAgent string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if withAgent != "" {
		rows, err = s.db.DB.Query(`
			SELECT id, conversation_id, from_agent, to_agent, content, timestamp, read
			FROM messages
			WHERE (from_agent = ? AND to_agent = ?) OR (from_agent = ? AND to_agent = ?)
			ORDER BY timestamp DESC LIMIT ?`, caller, withAgent, withAgent, caller, limit)
	} else {
		rows, err = s.db.DB.Query(`
			SELECT id, conversation_id, from_agent, to_agent, content, timestamp, read
			FROM messages
			WHERE from_agent = ? OR to_agent = ?
			ORDER BY timestamp DESC LIMIT ?`, caller, caller, limit)
	}
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

func scanMessages(rows *sql.Rows) ([]*Message, error) {
	var out []*Message
	for rows.Next() {
		m := &Message{}
		var cid, to sql.NullString
		var read int
		if err := rows.Scan(&m.ID, &cid, &m.From, &to, &m.Content, &m.Timestamp, &read); err != nil {
			return nil, err
		}
		m.ConversationID = cid.String
		m.To = to.String
		m.Read = read != 0
		out = append(out, m)
	}
	return out, rows.Err()
}

// AllMessages returns every message in the system, newest first, used by
// the public browse surface.
func (s *Store) AllMessages(limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.DB.Query(`
		SELECT id, conversation_id, from_agent, to_agent, content, timestamp, read
		FROM messages ORDER BY timestamp DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("all messages: %w", err)
	}
	defer rows.Close()
	return scanMessages(rows)
}

// CountAll returns the total number of messages, used by the status
// component.
func (s *Store) CountAll() (int, error) {
	var n int
	err := s.db.DB.QueryRow("SELECT COUNT(*) FROM messages").Scan(&n)
	return n, err
}

// sortedPair returns a,b in canonical (sorted) order; InsertMessageTx uses
// it before resolving the DM conversation.
func sortedPair(a, b string) (string, string) {
	pair := []string{a, b}
	sort.Strings(pair)
	return pair[0], pair[1]
}

// FindOrCreateDMTx exposes findOrCreateDM to other components that must
// resolve a DM inside their own transaction. (files.SendFile goes through
// InsertMessageTx instead.)
func FindOrCreateDMTx(tx *sql.Tx, a, b string) (string, error) {
	return findOrCreateDM(tx, a, b)
}

// InsertMessageTx inserts a message row within a caller-owned transaction —
// used by files.SendFile to combine upload + send atomically.
func InsertMessageTx(tx *sql.Tx, from, to, content string) (*Message, error) {
	msg := &Message{
		ID:        uuid.New().String(),
		From:      from,
		To:        to,
		Content:   content,
		Timestamp: store.Now(),
	}
	a, b := sortedPair(from, to)
	cid, err := findOrCreateDM(tx, a, b)
	if err != nil {
		return nil, err
	}
	msg.ConversationID = cid
	_, err = tx.Exec(
		"INSERT INTO messages (id, conversation_id, from_agent, to_agent, content, timestamp, read) VALUES (?,?,?,?,?,?,0)",
		msg.ID, msg.ConversationID, msg.From, msg.To, msg.Content, msg.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("insert message: %w", err)
	}
	return msg, nil
}
