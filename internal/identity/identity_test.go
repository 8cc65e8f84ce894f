package identity

import (
	"path/filepath"
	"testing"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
)

func setupTestStore(t *testing.T) *Store {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db)
}

func TestRegisterDirectRequiresCorrectSecret(t *testing.T) {
	s := setupTestStore(t)

	if _, _, err := s.RegisterDirect("alice", "wrong", "correct"); err == nil {
		t.Fatal("expected error for bad admin secret")
	}

	agent, key, err := s.RegisterDirect("alice", "correct", "correct")
	if err != nil {
		t.Fatalf("RegisterDirect failed: %v", err)
	}
	if agent.Name != "alice" || key == "" {
		t.Fatalf("unexpected result: %+v key=%q", agent, key)
	}
}

func TestRegisterDirectRejectsDuplicateName(t *testing.T) {
	s := setupTestStore(t)

	if _, _, err := s.RegisterDirect("alice", "secret", "secret"); err != nil {
		t.Fatalf("first register failed: %v", err)
	}
	if _, _, err := s.RegisterDirect("alice", "secret", "secret"); err == nil {
		t.Fatal("expected conflict on duplicate name")
	}
}

func TestAuthenticateUnknownKeyIs401(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.Authenticate("nonexistent")
	apiErr, ok := err.(*apierr.Error)
	if !ok || apiErr.Kind != apierr.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestJoinRequestApproveLifecycle(t *testing.T) {
	s := setupTestStore(t)

	reg, err := s.JoinRequest("bob", "a new agent", "bob@example.com")
	if err != nil {
		t.Fatalf("JoinRequest failed: %v", err)
	}
	if reg.Status != "pending" {
		t.Fatalf("expected pending status, got %q", reg.Status)
	}

	status, err := s.JoinStatus(reg.ID)
	if err != nil {
		t.Fatalf("JoinStatus failed: %v", err)
	}
	if status.APIKey != "" {
		t.Fatal("expected no api key before approval")
	}

	agent, key, err := s.Approve(reg.ID, "approver")
	if err != nil {
		t.Fatalf("Approve failed: %v", err)
	}
	if agent.Name != "bob" || key == "" {
		t.Fatalf("unexpected approve result: %+v key=%q", agent, key)
	}

	status, err = s.JoinStatus(reg.ID)
	if err != nil {
		t.Fatalf("JoinStatus after approval failed: %v", err)
	}
	if status.Status != "approved" || status.APIKey != key {
		t.Fatalf("expected approved status with matching key, got %+v", status)
	}

	// A second approval attempt 404s rather than double-creating the agent.
	if _, _, err := s.Approve(reg.ID, "approver"); err == nil {
		t.Fatal("expected error re-approving an already-reviewed registration")
	}
}

func TestJoinRequestAllowsReRequestAfterRejection(t *testing.T) {
	s := setupTestStore(t)

	reg, err := s.JoinRequest("carol", "", "")
	if err != nil {
		t.Fatalf("JoinRequest failed: %v", err)
	}
	if _, err := s.Reject(reg.ID, "approver"); err != nil {
		t.Fatalf("Reject failed: %v", err)
	}

	// Only status='pending' blocks a duplicate name, so this must succeed.
	if _, err := s.JoinRequest("carol", "", ""); err != nil {
		t.Fatalf("expected re-request after rejection to succeed, got %v", err)
	}
}

func TestJoinRequestRejectsDuplicatePending(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.JoinRequest("dave", "", ""); err != nil {
		t.Fatalf("JoinRequest failed: %v", err)
	}
	if _, err := s.JoinRequest("dave", "", ""); err == nil {
		t.Fatal("expected conflict for duplicate pending request")
	}
}

func TestListAgentsIncludesActivityCounts(t *testing.T) {
	s := setupTestStore(t)

	if _, _, err := s.RegisterDirect("erin", "secret", "secret"); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	agents, err := s.ListAgents()
	if err != nil {
		t.Fatalf("ListAgents failed: %v", err)
	}
	if len(agents) != 1 || agents[0].Name != "erin" {
		t.Fatalf("unexpected agents list: %+v", agents)
	}
	if agents[0].Messages != 0 || agents[0].Tasks != 0 || agents[0].Commits != 0 {
		t.Fatalf("expected zeroed activity counts for a fresh agent, got %+v", agents[0])
	}
}
