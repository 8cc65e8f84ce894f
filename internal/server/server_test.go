package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/agent-bridge/bridge/internal/config"
	"github.com/agent-bridge/bridge/internal/store"
)

func setupTestServer(t *testing.T) *Server {
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cfg := config.Default()
	cfg.AdminSecret = "test-admin-secret"
	cfg.FilesDir = filepath.Join(dir, "files")

	return New(cfg, db)
}

func doJSON(t *testing.T, handler http.Handler, method, path string, body interface{}, apiKey string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if apiKey != "" {
		req.Header.Set("x-api-key", apiKey)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &decoded); err != nil {
			t.Fatalf("decode response body %q: %v", rec.Body.String(), err)
		}
	}
	return rec, decoded
}

func registerAgent(t *testing.T, s *Server, name string) string {
	t.Helper()
	rec, body := doJSON(t, s.Handler(), "POST", "/register", map[string]string{
		"name":         name,
		"admin_secret": "test-admin-secret",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("register %s failed: %d %v", name, rec.Code, body)
	}
	return body["api_key"].(string)
}

func TestRootIsUnauthenticated(t *testing.T) {
	s := setupTestServer(t)
	rec, body := doJSON(t, s.Handler(), "GET", "/", nil, "")
	if rec.Code != http.StatusOK || body["status"] != "ok" {
		t.Fatalf("unexpected root response: %d %v", rec.Code, body)
	}
}

func TestRegisterRequiresCorrectAdminSecret(t *testing.T) {
	s := setupTestServer(t)
	rec, _ := doJSON(t, s.Handler(), "POST", "/register", map[string]string{
		"name":         "alice",
		"admin_secret": "wrong",
	}, "")
	if rec.Code == http.StatusOK {
		t.Fatal("expected register to fail with a bad admin secret")
	}
}

func TestTaskLifecycleEndToEnd(t *testing.T) {
	s := setupTestServer(t)
	aliceKey := registerAgent(t, s, "alice")
	bobKey := registerAgent(t, s, "bob")

	rec, task := doJSON(t, s.Handler(), "POST", "/tasks", map[string]string{"title": "fix the bridge"}, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("create task failed: %d %v", rec.Code, task)
	}
	taskID := task["id"].(string)
	if task["status"] != "open" {
		t.Fatalf("expected new task to be open, got %v", task["status"])
	}

	rec, claimed := doJSON(t, s.Handler(), "POST", "/tasks/"+taskID+"/claim", nil, bobKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("claim failed: %d %v", rec.Code, claimed)
	}
	if claimed["status"] != "claimed" || claimed["claimed_by"] != "bob" {
		t.Fatalf("unexpected claim result: %v", claimed)
	}

	rec, done := doJSON(t, s.Handler(), "POST", "/tasks/"+taskID+"/complete", nil, bobKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("complete failed: %d %v", rec.Code, done)
	}
	if done["status"] != "done" || done["completed_at"] == nil {
		t.Fatalf("unexpected complete result: %v", done)
	}

	rec, board := doJSON(t, s.Handler(), "GET", "/board", nil, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("board failed: %d %v", rec.Code, board)
	}
	doneList := board["done"].([]interface{})
	if len(doneList) != 1 {
		t.Fatalf("expected the completed task on the board, got %v", board)
	}
}

func TestMessagingSendInboxMarkRead(t *testing.T) {
	s := setupTestServer(t)
	aliceKey := registerAgent(t, s, "alice")
	bobKey := registerAgent(t, s, "bob")

	rec, body := doJSON(t, s.Handler(), "POST", "/send", map[string]string{"to": "bob", "content": "hello"}, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("send failed: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, s.Handler(), "GET", "/inbox", nil, bobKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("inbox failed: %d %v", rec.Code, body)
	}
	messages := body["messages"].([]interface{})
	if len(messages) != 1 {
		t.Fatalf("expected one unread message in bob's inbox, got %v", messages)
	}
	msgID := messages[0].(map[string]interface{})["id"].(string)

	rec, _ = doJSON(t, s.Handler(), "POST", "/inbox/"+msgID+"/read", nil, bobKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark-read failed: %d", rec.Code)
	}

	rec, body = doJSON(t, s.Handler(), "GET", "/inbox", nil, bobKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("second inbox check failed: %d %v", rec.Code, body)
	}
	messages = body["messages"].([]interface{})
	if len(messages) != 0 {
		t.Fatalf("expected empty inbox after mark-read, got %v", messages)
	}
}

func TestRevisionsCommitAndTree(t *testing.T) {
	s := setupTestServer(t)
	aliceKey := registerAgent(t, s, "alice")

	rec, body := doJSON(t, s.Handler(), "POST", "/git/repos", map[string]string{"name": "widgets"}, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("create repo failed: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, s.Handler(), "POST", "/git/repos/widgets/commit", map[string]interface{}{
		"message": "initial",
		"files": []map[string]string{
			{"path": "a.txt", "content": "hello", "action": "add"},
		},
	}, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("commit failed: %d %v", rec.Code, body)
	}

	rec, body = doJSON(t, s.Handler(), "GET", "/git/repos/widgets/tree", nil, aliceKey)
	if rec.Code != http.StatusOK {
		t.Fatalf("tree failed: %d %v", rec.Code, body)
	}
	tree := body["tree"].([]interface{})
	if len(tree) != 1 {
		t.Fatalf("expected one file in the tree, got %v", tree)
	}
}
