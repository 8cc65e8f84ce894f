package browse

import (
	"path/filepath"
	"testing"

	"github.com/agent-bridge/bridge/internal/messaging"
	"github.com/agent-bridge/bridge/internal/store"
)

func setupTestStore(t *testing.T) (*Store, *messaging.Store) {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return New(db), messaging.New(db)
}

func TestListAllConversationsIncludesMembersAndCounts(t *testing.T) {
	s, msgs := setupTestStore(t)
	if _, err := msgs.SendDM("alice", "bob", "hi"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}
	if _, err := msgs.SendDM("alice", "bob", "again"); err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	convs, err := s.ListAllConversations()
	if err != nil {
		t.Fatalf("ListAllConversations failed: %v", err)
	}
	if len(convs) != 1 {
		t.Fatalf("expected a single DM conversation, got %+v", convs)
	}
	if convs[0].MessageCount != 2 {
		t.Fatalf("expected 2 messages, got %d", convs[0].MessageCount)
	}
	if len(convs[0].Members) != 2 {
		t.Fatalf("expected 2 members, got %+v", convs[0].Members)
	}
}

func TestBrowseConversationRequiresNoAuth(t *testing.T) {
	s, msgs := setupTestStore(t)
	msg, err := msgs.SendDM("alice", "bob", "hi")
	if err != nil {
		t.Fatalf("SendDM failed: %v", err)
	}

	summary, out, err := s.BrowseConversation(msg.ConversationID, 10)
	if err != nil {
		t.Fatalf("BrowseConversation failed: %v", err)
	}
	if summary.MessageCount != 1 || len(out) != 1 || out[0].Content != "hi" {
		t.Fatalf("unexpected browse result: summary=%+v messages=%+v", summary, out)
	}
}

func TestBrowseConversationUnknownID404s(t *testing.T) {
	s, _ := setupTestStore(t)
	if _, _, err := s.BrowseConversation("does-not-exist", 10); err == nil {
		t.Fatal("expected error for unknown conversation id")
	}
}
