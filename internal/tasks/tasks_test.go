package tasks

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

func TestCreateRejectsInvalidPriority(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Create("alice", CreateInput{Title: "x", Priority: "urgentish"}); err == nil {
		t.Fatal("expected error for invalid priority")
	}
}

func TestCreateDefaultsToOpenAndNormal(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "ship it"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if task.Status != "open" || task.Priority != "normal" {
		t.Fatalf("unexpected defaults: %+v", task)
	}

	history, err := s.History(task.ID)
	if err != nil {
		t.Fatalf("History failed: %v", err)
	}
	if len(history) != 1 || history[0].Action != "created" {
		t.Fatalf("expected one 'created' history entry, got %+v", history)
	}
}

func TestClaimOnlyLegalFromOpen(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Claim(task.ID, "bob"); err != nil {
		t.Fatalf("Claim from open failed: %v", err)
	}
	if _, err := s.Claim(task.ID, "carol"); err == nil {
		t.Fatal("expected claim to fail once already claimed")
	}
}

func TestStartLegalFromOpenOrClaimed(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	started, err := s.Start(task.ID, "bob")
	if err != nil {
		t.Fatalf("Start from open failed: %v", err)
	}
	if started.Status != "in_progress" || started.ClaimedBy != "bob" {
		t.Fatalf("unexpected start result: %+v", started)
	}
}

func TestCompleteLegalFromAnyNonTerminalState(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	done, err := s.Complete(task.ID, "alice")
	if err != nil {
		t.Fatalf("Complete from open failed: %v", err)
	}
	if done.Status != "done" || done.CompletedAt == nil {
		t.Fatalf("expected done status with completed_at set, got %+v", done)
	}
	if _, err := s.Complete(task.ID, "alice"); err == nil {
		t.Fatal("expected error completing an already-done task")
	}
}

func TestBlockHasNoStatusGuard(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Complete(task.ID, "alice"); err != nil {
		t.Fatalf("Complete failed: %v", err)
	}
	// Block works even from the terminal 'done' state — no guard at all.
	blocked, err := s.Block(task.ID, "alice", "found a regression")
	if err != nil {
		t.Fatalf("expected block to succeed from any status, got %v", err)
	}
	if blocked.Status != "blocked" {
		t.Fatalf("expected blocked status, got %q", blocked.Status)
	}

	comments, err := s.Comments(task.ID)
	if err != nil {
		t.Fatalf("Comments failed: %v", err)
	}
	if len(comments) != 1 || comments[0].Content != "🚫 Blocked: found a regression" {
		t.Fatalf("expected blocking reason recorded as a prefixed comment, got %+v", comments)
	}
}

func TestUpdateStampsCompletedAtOnlyOnDoneAndNeverClears(t *testing.T) {
	s := setupTestStore(t)
	task, err := s.Create("alice", CreateInput{Title: "t"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	done := "done"
	updated, err := s.Update(task.ID, "alice", UpdateInput{Status: &done})
	if err != nil {
		t.Fatalf("Update to done failed: %v", err)
	}
	if updated.CompletedAt == nil {
		t.Fatal("expected completed_at to be stamped")
	}
	completedAt := *updated.CompletedAt

	blocked := "blocked"
	updated, err = s.Update(task.ID, "alice", UpdateInput{Status: &blocked})
	if err != nil {
		t.Fatalf("Update to blocked failed: %v", err)
	}
	if updated.CompletedAt == nil || *updated.CompletedAt != completedAt {
		t.Fatalf("expected completed_at to remain unchanged, got %+v want %v", updated.CompletedAt, completedAt)
	}
}

func TestDependenciesRejectSelfLoopAndAreIdempotent(t *testing.T) {
	s := setupTestStore(t)
	a, err := s.Create("alice", CreateInput{Title: "a"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	b, err := s.Create("alice", CreateInput{Title: "b"})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.AddDependency(a.ID, a.ID); err == nil {
		t.Fatal("expected self-loop to be rejected")
	}
	if err := s.AddDependency(a.ID, b.ID); err != nil {
		t.Fatalf("AddDependency failed: %v", err)
	}
	if err := s.AddDependency(a.ID, b.ID); err == nil {
		t.Fatal("expected duplicate dependency to conflict")
	}

	deps, err := s.GetDependencies(a.ID)
	if err != nil {
		t.Fatalf("GetDependencies failed: %v", err)
	}
	if len(deps.DependsOn) != 1 || deps.DependsOn[0] != b.ID {
		t.Fatalf("unexpected depends_on: %+v", deps)
	}
	if deps.UnmetBlockers != 1 {
		t.Fatalf("expected 1 unmet blocker, got %d", deps.UnmetBlockers)
	}
}

func TestListOrdersByPriorityThenRecency(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Create("alice", CreateInput{Title: "low one", Priority: "low"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.Create("alice", CreateInput{Title: "urgent one", Priority: "urgent"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	list, err := s.List(ListFilter{})
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 2 || list[0].Priority != "urgent" {
		t.Fatalf("expected urgent task first, got %+v", list)
	}
}

func TestBoardCapsAtFiftyPerStatus(t *testing.T) {
	s := setupTestStore(t)
	for i := 0; i < 51; i++ {
		if _, err := s.Create("alice", CreateInput{Title: "t"}); err != nil {
			t.Fatalf("Create failed: %v", err)
		}
	}
	board, err := s.Board()
	if err != nil {
		t.Fatalf("Board failed: %v", err)
	}
	if len(board["open"]) != 50 {
		t.Fatalf("expected 51 open tasks to be capped at 50 on the board, got %d", len(board["open"]))
	}
	if _, ok := board["done"]; !ok {
		t.Fatal("expected a 'done' bucket even when empty")
	}
}
