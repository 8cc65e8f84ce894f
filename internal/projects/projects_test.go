package projects

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

func TestCreateMakesCreatorSoleOwner(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "the bridge project")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	detail, err := s.Get(p.ID, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(detail.Members) != 1 || detail.Members[0].Agent != "alice" || detail.Members[0].Role != "owner" {
		t.Fatalf("unexpected members: %+v", detail.Members)
	}
}

func TestProgressPctIsZeroWithNoTasks(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	list, err := s.List()
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(list) != 1 || list[0].ID != p.ID || list[0].ProgressPct != 0 {
		t.Fatalf("expected zero progress for task-less project, got %+v", list)
	}
}

func TestProgressPctReflectsDoneTasks(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	now := store.Now()
	if _, err := s.db.DB.Exec(
		"INSERT INTO tasks (id, title, status, priority, created_by, tags, created_at, updated_at, project_id) VALUES ('t1','a','done','normal','alice','[]',?,?,?)",
		now, now, p.ID); err != nil {
		t.Fatalf("insert task: %v", err)
	}
	if _, err := s.db.DB.Exec(
		"INSERT INTO tasks (id, title, status, priority, created_by, tags, created_at, updated_at, project_id) VALUES ('t2','b','open','normal','alice','[]',?,?,?)",
		now, now, p.ID); err != nil {
		t.Fatalf("insert task: %v", err)
	}

	pct, err := s.progress(p.ID)
	if err != nil {
		t.Fatalf("progress failed: %v", err)
	}
	if pct != 50 {
		t.Fatalf("expected 50%% progress, got %v", pct)
	}
}

func TestAddMemberIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.AddMember(p.ID, "bob"); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := s.AddMember(p.ID, "bob"); err != nil {
		t.Fatalf("second AddMember failed: %v", err)
	}
	detail, err := s.Get(p.ID, nil)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(detail.Members) != 2 {
		t.Fatalf("expected exactly 2 members, got %+v", detail.Members)
	}
}

func TestListMilestonesOrdersNullsLast(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := s.CreateMilestone(p.ID, "no due date", "", nil); err != nil {
		t.Fatalf("CreateMilestone failed: %v", err)
	}
	due := store.Now() + 1000
	if _, err := s.CreateMilestone(p.ID, "has due date", "", &due); err != nil {
		t.Fatalf("CreateMilestone failed: %v", err)
	}

	milestones, err := s.ListMilestones(p.ID)
	if err != nil {
		t.Fatalf("ListMilestones failed: %v", err)
	}
	if len(milestones) != 2 {
		t.Fatalf("expected 2 milestones, got %d", len(milestones))
	}
	if milestones[0].Name != "has due date" || milestones[1].Name != "no due date" {
		t.Fatalf("expected dated milestone first, nulls last, got %+v", milestones)
	}
}

func TestGetUsesFetchTasksCallback(t *testing.T) {
	s := setupTestStore(t)
	p, err := s.Create("alice", "bridge", "")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	called := false
	detail, err := s.Get(p.ID, func(projectID string) ([]interface{}, error) {
		called = true
		if projectID != p.ID {
			t.Fatalf("unexpected project id passed to callback: %s", projectID)
		}
		return []interface{}{"sentinel"}, nil
	})
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !called {
		t.Fatal("expected fetchTasks callback to be invoked")
	}
	if len(detail.Tasks) != 1 || detail.Tasks[0] != "sentinel" {
		t.Fatalf("expected callback result to flow through, got %+v", detail.Tasks)
	}
}

func TestGetUnknownProjectIs404(t *testing.T) {
	s := setupTestStore(t)
	if _, err := s.Get("does-not-exist", nil); err == nil {
		t.Fatal("expected error for unknown project")
	}
}
