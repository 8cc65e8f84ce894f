package revisions

import (
	"path/filepath"
	"strings"
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

func TestCreateRepoRejectsDuplicateName(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.CreateRepo("widgets", "", "alice", "", ""); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	if _, err := s.CreateRepo("widgets", "", "bob", "", ""); err == nil {
		t.Fatal("expected conflict for duplicate repo name")
	}
}

func TestCreateRepoDefaultsBranchToMain(t *testing.T) {
	s := setupTestStore(t)
	r, err := s.CreateRepo("widgets", "", "alice", "", "")
	if err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	if r.DefaultBranch != "main" {
		t.Fatalf("expected default branch 'main', got %q", r.DefaultBranch)
	}
}

func TestCommitChainAdvancesBranchHead(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.CreateRepo("widgets", "", "alice", "main", ""); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}

	c1, err := s.Commit("widgets", "main", "alice", "first", []CommitInput{{Path: "a.txt", Content: "hello", Action: "add"}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if c1.ParentID != "" {
		t.Fatalf("expected first commit to have no parent, got %q", c1.ParentID)
	}

	c2, err := s.Commit("widgets", "main", "alice", "second", []CommitInput{{Path: "a.txt", Content: "world", Action: "modify"}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if c2.ParentID != c1.ID {
		t.Fatalf("expected second commit's parent to be the first, got %q want %q", c2.ParentID, c1.ID)
	}

	log, err := s.Log("widgets", "main")
	if err != nil {
		t.Fatalf("Log failed: %v", err)
	}
	if len(log) != 2 || log[0].ID != c2.ID || log[1].ID != c1.ID {
		t.Fatalf("expected reverse-chronological log, got %+v", log)
	}
}

func TestTreeMaterializesLatestAndFiltersDeletes(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.CreateRepo("widgets", "", "alice", "main", ""); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	if _, err := s.Commit("widgets", "main", "alice", "add two files", []CommitInput{
		{Path: "a.txt", Content: "a", Action: "add"},
		{Path: "b.txt", Content: "b", Action: "add"},
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := s.Commit("widgets", "main", "alice", "delete b", []CommitInput{
		{Path: "b.txt", Action: "delete"},
	}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}

	tree, err := s.Tree("widgets", "main")
	if err != nil {
		t.Fatalf("Tree failed: %v", err)
	}
	if len(tree) != 1 || tree[0].Path != "a.txt" {
		t.Fatalf("expected only a.txt to survive, got %+v", tree)
	}
}

func TestReadFileReturnsNotFoundAfterDelete(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.CreateRepo("widgets", "", "alice", "main", ""); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	if _, err := s.Commit("widgets", "main", "alice", "add", []CommitInput{{Path: "a.txt", Content: "a", Action: "add"}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	content, err := s.ReadFile("widgets", "main", "a.txt")
	if err != nil || content != "a" {
		t.Fatalf("ReadFile failed: content=%q err=%v", content, err)
	}

	if _, err := s.Commit("widgets", "main", "alice", "remove", []CommitInput{{Path: "a.txt", Action: "delete"}}); err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	if _, err := s.ReadFile("widgets", "main", "a.txt"); err == nil {
		t.Fatal("expected error reading a deleted file")
	}
}

func TestDiffAddAndModifyAndDelete(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.CreateRepo("widgets", "", "alice", "main", ""); err != nil {
		t.Fatalf("CreateRepo failed: %v", err)
	}
	c1, err := s.Commit("widgets", "main", "alice", "add", []CommitInput{{Path: "a.txt", Content: "line1\nline2", Action: "add"}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	diff1, err := s.Diff(c1.ID)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(diff1) != 1 || !strings.Contains(diff1[0].Diff, "new file") {
		t.Fatalf("expected new-file stub for add, got %+v", diff1)
	}

	c2, err := s.Commit("widgets", "main", "alice", "modify", []CommitInput{{Path: "a.txt", Content: "line1\nline2 changed", Action: "modify"}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	diff2, err := s.Diff(c2.ID)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(diff2) != 1 || !strings.Contains(diff2[0].Diff, "-line2") || !strings.Contains(diff2[0].Diff, "+line2 changed") {
		t.Fatalf("expected unified diff with changed line, got %+v", diff2[0].Diff)
	}

	c3, err := s.Commit("widgets", "main", "alice", "delete", []CommitInput{{Path: "a.txt", Action: "delete"}})
	if err != nil {
		t.Fatalf("Commit failed: %v", err)
	}
	diff3, err := s.Diff(c3.ID)
	if err != nil {
		t.Fatalf("Diff failed: %v", err)
	}
	if len(diff3) != 1 || !strings.Contains(diff3[0].Diff, "file deleted") {
		t.Fatalf("expected deleted-file stub, got %+v", diff3)
	}
}

func TestLcsDiffEqualLinesProduceNoChanges(t *testing.T) {
	ops := lcsDiff([]string{"a", "b", "c"}, []string{"a", "b", "c"})
	for _, op := range ops {
		if op.kind != opEqual {
			t.Fatalf("expected all-equal diff for identical input, got %+v", ops)
		}
	}
}

func TestLcsDiffDetectsInsertWithoutDelete(t *testing.T) {
	ops := lcsDiff([]string{"a", "b"}, []string{"a", "c", "b"})
	var inserted, deleted bool
	for _, op := range ops {
		if op.kind == opInsert && op.line == "c" {
			inserted = true
		}
		if op.kind == opDelete {
			deleted = true
		}
	}
	if !inserted {
		t.Fatalf("expected insert of 'c', got %+v", ops)
	}
	if deleted {
		t.Fatalf("did not expect any deletions, got %+v", ops)
	}
}
