// Package identity implements agent registration, API-key auth, and the
// pending-registration (self-service join) workflow of spec.md §4.2.
package identity

import (
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"fmt"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/google/uuid"
)

// Agent is a registered participant.
type Agent struct {
	Name      string  `json:"name"`
	CreatedAt float64 `json:"created_at"`
}

// PendingRegistration is a self-service join request awaiting approval.
type PendingRegistration struct {
	ID          string   `json:"id"`
	AgentName   string   `json:"agent_name"`
	Description string   `json:"description"`
	Contact     string   `json:"contact"`
	Status      string   `json:"status"`
	CreatedAt   float64  `json:"created_at"`
	ReviewedAt  *float64 `json:"reviewed_at,omitempty"`
	ReviewedBy  *string  `json:"reviewed_by,omitempty"`
	APIKey      string   `json:"api_key,omitempty"`
}

// AgentSummary is the public directory entry with activity stats.
type AgentSummary struct {
	Name       string   `json:"name"`
	JoinedAt   float64  `json:"joined_at"`
	Messages   int      `json:"messages"`
	Tasks      int      `json:"tasks"`
	Commits    int      `json:"commits"`
	LastActive *float64 `json:"last_active"`
}

// Store provides identity operations over the shared relational backend.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

// newAPIKey mints an opaque token with at least 32 bytes of entropy
// (spec.md §3), base64url-encoded the way secrets.token_urlsafe does in
// the original.
func newAPIKey() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Authenticate resolves an API key header to an agent name. Unknown keys
// are an AuthError (401).
func (s *Store) Authenticate(apiKey string) (string, error) {
	if apiKey == "" {
		return "", apierr.Auth("missing x-api-key header")
	}
	var name string
	err := s.db.DB.QueryRow("SELECT name FROM agents WHERE api_key = ?", apiKey).Scan(&name)
	if err == sql.ErrNoRows {
		return "", apierr.Auth("invalid API key")
	}
	if err != nil {
		return "", fmt.Errorf("lookup api key: %w", err)
	}
	return name, nil
}

// OptionalAuthenticate is Authenticate but returns ("", false) instead of
// an error when no key is supplied or the key doesn't resolve — used by
// the handful of read-only endpoints that accept anonymous callers.
func (s *Store) OptionalAuthenticate(apiKey string) (string, bool) {
	if apiKey == "" {
		return "", false
	}
	name, err := s.Authenticate(apiKey)
	if err != nil {
		return "", false
	}
	return name, true
}

// RegisterDirect creates an agent immediately given a valid admin secret,
// bypassing the join queue (spec.md §4.2 `register`).
func (s *Store) RegisterDirect(name, suppliedSecret, configuredSecret string) (*Agent, string, error) {
	if configuredSecret == "" || suppliedSecret != configuredSecret {
		return nil, "", apierr.Forbidden("bad admin secret")
	}
	if name == "" {
		return nil, "", apierr.Validation("agent name is required")
	}

	var exists bool
	if err := s.db.DB.QueryRow("SELECT 1 FROM agents WHERE name = ?", name).Scan(new(int)); err == nil {
		exists = true
	} else if err != sql.ErrNoRows {
		return nil, "", fmt.Errorf("check existing agent: %w", err)
	}
	if exists {
		return nil, "", apierr.Conflict(fmt.Sprintf("%s already registered", name))
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, "", err
	}
	now := store.Now()
	if _, err := s.db.DB.Exec("INSERT INTO agents (name, api_key, created_at) VALUES (?, ?, ?)", name, key, now); err != nil {
		return nil, "", apierr.Conflict(fmt.Sprintf("%s already registered", name))
	}
	return &Agent{Name: name, CreatedAt: now}, key, nil
}

// JoinRequest records a self-service join request. A name already taken by
// an agent, or already pending, conflicts (409). A previously rejected name
// may be re-requested — only 'pending' status blocks a duplicate, per
// spec.md §9 open question 6.
func (s *Store) JoinRequest(name, description, contact string) (*PendingRegistration, error) {
	if name == "" {
		return nil, apierr.Validation("agent_name is required")
	}

	var dummy int
	if err := s.db.DB.QueryRow("SELECT 1 FROM agents WHERE name = ?", name).Scan(&dummy); err == nil {
		return nil, apierr.Conflict(fmt.Sprintf("%s is already a registered agent", name))
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check registered agent: %w", err)
	}
	if err := s.db.DB.QueryRow(
		"SELECT 1 FROM pending_registrations WHERE agent_name = ? AND status = 'pending'", name).Scan(&dummy); err == nil {
		return nil, apierr.Conflict(fmt.Sprintf("%s already has a pending request", name))
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("check pending registration: %w", err)
	}

	reg := &PendingRegistration{
		ID:          uuid.New().String(),
		AgentName:   name,
		Description: description,
		Contact:     contact,
		Status:      "pending",
		CreatedAt:   store.Now(),
	}
	_, err := s.db.DB.Exec(
		"INSERT INTO pending_registrations (id, agent_name, description, contact, status, created_at) VALUES (?,?,?,?,'pending',?)",
		reg.ID, reg.AgentName, reg.Description, reg.Contact, reg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert pending registration: %w", err)
	}
	return reg, nil
}

// JoinStatus returns a pending registration by id, including the API key
// once the registration has been approved (spec.md §4.2).
func (s *Store) JoinStatus(id string) (*PendingRegistration, error) {
	reg, err := s.getRegistration(id, "")
	if err != nil {
		return nil, err
	}
	if reg.Status == "approved" {
		var key string
		err := s.db.DB.QueryRow("SELECT api_key FROM agents WHERE name = ?", reg.AgentName).Scan(&key)
		if err == nil {
			reg.APIKey = key
		} else if err != sql.ErrNoRows {
			return nil, fmt.Errorf("lookup approved agent key: %w", err)
		}
	}
	return reg, nil
}

// ListPending returns every registration regardless of status, newest first
// (spec.md's public join-queue listing).
func (s *Store) ListPending() ([]*PendingRegistration, error) {
	rows, err := s.db.DB.Query(
		"SELECT id, agent_name, description, contact, status, created_at FROM pending_registrations ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list pending registrations: %w", err)
	}
	defer rows.Close()

	var out []*PendingRegistration
	for rows.Next() {
		reg := &PendingRegistration{}
		if err := rows.Scan(&reg.ID, &reg.AgentName, &reg.Description, &reg.Contact, &reg.Status, &reg.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, reg)
	}
	return out, rows.Err()
}

// Approve creates the agent row for a pending registration and marks it
// approved. Any authenticated agent may approve (spec.md §4.2). Idempotent
// at the registration level: only 'pending' rows match, so a second
// approval attempt 404s rather than duplicating the agent.
func (s *Store) Approve(id, approver string) (*Agent, string, error) {
	reg, err := s.getRegistration(id, "pending")
	if err != nil {
		return nil, "", err
	}

	key, err := newAPIKey()
	if err != nil {
		return nil, "", err
	}

	var agent *Agent
	err = s.db.WithTx(func(tx *sql.Tx) error {
		now := store.Now()
		if _, err := tx.Exec("INSERT INTO agents (name, api_key, created_at) VALUES (?, ?, ?)", reg.AgentName, key, now); err != nil {
			return apierr.Conflict(fmt.Sprintf("%s was already registered by a concurrent approval", reg.AgentName))
		}
		res, err := tx.Exec(
			"UPDATE pending_registrations SET status = 'approved', reviewed_at = ?, reviewed_by = ? WHERE id = ? AND status = 'pending'",
			now, approver, id)
		if err != nil {
			return fmt.Errorf("mark approved: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return apierr.Conflict("registration was already reviewed")
		}
		agent = &Agent{Name: reg.AgentName, CreatedAt: now}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return agent, key, nil
}

// Reject marks a pending registration rejected. Any authenticated agent may
// reject.
func (s *Store) Reject(id, approver string) (*PendingRegistration, error) {
	reg, err := s.getRegistration(id, "pending")
	if err != nil {
		return nil, err
	}
	now := store.Now()
	res, err := s.db.DB.Exec(
		"UPDATE pending_registrations SET status = 'rejected', reviewed_at = ?, reviewed_by = ? WHERE id = ? AND status = 'pending'",
		now, approver, id)
	if err != nil {
		return nil, fmt.Errorf("reject registration: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, apierr.Conflict("registration was already reviewed")
	}
	reg.Status = "rejected"
	reg.ReviewedAt = &now
	reg.ReviewedBy = &approver
	return reg, nil
}

func (s *Store) getRegistration(id, requireStatus string) (*PendingRegistration, error) {
	query := "SELECT id, agent_name, description, contact, status, created_at FROM pending_registrations WHERE id = ?"
	args := []interface{}{id}
	if requireStatus != "" {
		query += " AND status = ?"
		args = append(args, requireStatus)
	}
	reg := &PendingRegistration{}
	err := s.db.DB.QueryRow(query, args...).Scan(
		&reg.ID, &reg.AgentName, &reg.Description, &reg.Contact, &reg.Status, &reg.CreatedAt)
	if err == sql.ErrNoRows {
		if requireStatus == "pending" {
			return nil, apierr.NotFound("no pending registration with that ID")
		}
		return nil, apierr.NotFound("registration not found")
	}
	if err != nil {
		return nil, fmt.Errorf("lookup registration: %w", err)
	}
	return reg, nil
}

// ListAgents returns the public directory with per-agent activity stats.
func (s *Store) ListAgents() ([]*AgentSummary, error) {
	rows, err := s.db.DB.Query("SELECT name, created_at FROM agents ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list agents: %w", err)
	}
	defer rows.Close()

	var names []string
	summaries := map[string]*AgentSummary{}
	for rows.Next() {
		sum := &AgentSummary{}
		if err := rows.Scan(&sum.Name, &sum.JoinedAt); err != nil {
			return nil, err
		}
		summaries[sum.Name] = sum
		names = append(names, sum.Name)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, name := range names {
		sum := summaries[name]
		if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM messages WHERE from_agent = ?", name).Scan(&sum.Messages); err != nil {
			return nil, fmt.Errorf("count messages: %w", err)
		}
		if err := s.db.DB.QueryRow(
			"SELECT COUNT(*) FROM tasks WHERE created_by = ? OR claimed_by = ?", name, name).Scan(&sum.Tasks); err != nil {
			return nil, fmt.Errorf("count tasks: %w", err)
		}
		if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM git_commits WHERE author = ?", name).Scan(&sum.Commits); err != nil {
			return nil, fmt.Errorf("count commits: %w", err)
		}
		var last sql.NullFloat64
		if err := s.db.DB.QueryRow("SELECT MAX(timestamp) FROM messages WHERE from_agent = ?", name).Scan(&last); err != nil {
			return nil, fmt.Errorf("last active: %w", err)
		}
		if last.Valid {
			sum.LastActive = &last.Float64
		}
	}

	out := make([]*AgentSummary, 0, len(names))
	for _, name := range names {
		out = append(out, summaries[name])
	}
	return out, nil
}

// ListKeys is the admin-only directory used by GET /admin/keys.
func (s *Store) ListKeys() ([]*Agent, error) {
	rows, err := s.db.DB.Query("SELECT name, created_at FROM agents ORDER BY created_at ASC")
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	defer rows.Close()
	var out []*Agent
	for rows.Next() {
		a := &Agent{}
		if err := rows.Scan(&a.Name, &a.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
