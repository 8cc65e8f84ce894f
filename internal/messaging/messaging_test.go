package messaging

import (
	"path/filepath"
	"testing"

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

func TestSendDMCreatesCanonicalConversation(t *testing.T) {
	s := setupTestStore(t)

	m1, err := s.SendDM("alice", "bob", "hi bob")
	if err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}
	m2, err := s.SendDM("bob", "alice", "hi alice")
	if err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	if m1.ConversationID != m2.ConversationID {
		t.Fatalf("expected (A,B) and (B,A) to share a conversation, got %q and %q", m1.ConversationID, m2.ConversationID)
	}
}

func TestInviteIntoDMIsForbidden(t *testing.T) {
	s := setupTestStore(t)

	msg, err := s.SendDM("alice", "bob", "hi")
	if err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}
	if err := s.Invite(msg.ConversationID, "alice", "carol"); err == nil {
		t.Fatal("expected error inviting into a DM")
	}
}

func TestGroupConversationInviteAndLeave(t *testing.T) {
	s := setupTestStore(t)

	conv, err := s.CreateGroup("squad", "alice", []string{"bob"})
	if err != nil {
		t.Fatalf("CreateGroup failed: %v", err)
	}
	if err := s.Invite(conv.ID, "alice", "carol"); err != nil {
		t.Fatalf("Invite failed: %v", err)
	}

	got, err := s.GetConversation(conv.ID, "carol")
	if err != nil {
		t.Fatalf("GetConversation failed: %v", err)
	}
	if len(got.Members) != 3 {
		t.Fatalf("expected 3 members, got %v", got.Members)
	}

	if err := s.Leave(conv.ID, "bob"); err != nil {
		t.Fatalf("Leave failed: %v", err)
	}
	// Leaving twice is idempotent.
	if err := s.Leave(conv.ID, "bob"); err != nil {
		t.Fatalf("second Leave failed: %v", err)
	}

	if _, err := s.GetConversation(conv.ID, "bob"); err == nil {
		t.Fatal("expected bob to no longer be a member")
	}
}

func TestInboxReturnsUnreadFromOthersOnly(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.SendDM("alice", "bob", "hello"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}
	if _, err := s.SendDM("bob", "alice", "hi back"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	inbox, err := s.Inbox("bob", 0, 10)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(inbox) != 1 || inbox[0].From != "alice" {
		t.Fatalf("expected exactly alice's message in bob's inbox, got %+v", inbox)
	}
}

func TestMarkReadDoesNotCheckMembership(t *testing.T) {
	s := setupTestStore(t)

	msg, err := s.SendDM("alice", "bob", "hello")
	if err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	// No membership check is performed — the id alone is enough.
	if err := s.MarkRead(msg.ID); err != nil {
		t.Fatalf("expected MarkRead to succeed without a membership check, got %v", err)
	}

	inbox, err := s.Inbox("bob", 0, 10)
	if err != nil {
		t.Fatalf("Inbox failed: %v", err)
	}
	if len(inbox) != 0 {
		t.Fatalf("expected message to no longer be unread, got %+v", inbox)
	}
}

func TestMarkReadUnknownMessage404s(t *testing.T) {
	s := setupTestStore(t)
	if err := s.MarkRead("does-not-exist"); err == nil {
		t.Fatal("expected error for unknown message id")
	}
}

func TestHistoryFiltersByAgent(t *testing.T) {
	s := setupTestStore(t)

	if _, err := s.SendDM("alice", "bob", "to bob"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}
	if _, err := s.SendDM("alice", "carol", "to carol"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	hist, err := s.History("alice", "bob", 10)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(hist) != 1 || hist[0].To != "bob" {
		t.Fatalf("expected only the alice<->bob message, got %+v", hist)
	}
}
