// Package tasks implements the task board state machine, dependency graph,
// comments, and history of spec.md §4.5.
package tasks

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/google/uuid"
)

var validPriorities = map[string]bool{"low": true, "normal": true, "high": true, "urgent": true}

var priorityRank = map[string]int{"urgent": 0, "high": 1, "normal": 2, "low": 3}

// statusTransitions enumerates the non-terminal state table for reference.
// Nothing consults it: claim, start, complete, and block each check their
// own rule directly, and Update accepts any valid status.
var statusTransitions = map[string][]string{
	"open":        {"claimed", "in_progress", "done", "cancelled", "blocked"},
	"claimed":     {"in_progress", "blocked", "cancelled"},
	"in_progress": {"done", "blocked", "cancelled"},
	"blocked":     {"in_progress", "cancelled"},
}

// Task is a unit of work on the board.
type Task struct {
	ID             string   `json:"id"`
	Title          string   `json:"title"`
	Description    string   `json:"description,omitempty"`
	Status         string   `json:"status"`
	Priority       string   `json:"priority"`
	CreatedBy      string   `json:"created_by"`
	AssignedTo     string   `json:"assigned_to,omitempty"`
	ClaimedBy      string   `json:"claimed_by,omitempty"`
	Tags           []string `json:"tags"`
	CreatedAt      float64  `json:"created_at"`
	UpdatedAt      float64  `json:"updated_at"`
	CompletedAt    *float64 `json:"completed_at,omitempty"`
	DueBy          *float64 `json:"due_by,omitempty"`
	ParentID       string   `json:"parent_id,omitempty"`
	ProjectID      string   `json:"project_id,omitempty"`
	MilestoneID    string   `json:"milestone_id,omitempty"`
	EffortEstimate string   `json:"effort_estimate,omitempty"`
}

// Comment is an immutable note on a task.
type Comment struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	Agent     string  `json:"agent_name"`
	Content   string  `json:"content"`
	CreatedAt float64 `json:"created_at"`
}

// HistoryEntry records one state-changing action on a task.
type HistoryEntry struct {
	ID        string  `json:"id"`
	TaskID    string  `json:"task_id"`
	Agent     string  `json:"agent_name"`
	Action    string  `json:"action"`
	Details   string  `json:"details,omitempty"`
	CreatedAt float64 `json:"created_at"`
}

// Dependencies is the graph neighborhood returned for one task.
type Dependencies struct {
	DependsOn     []string `json:"depends_on"`
	Blocks        []string `json:"blocks"`
	UnmetBlockers int      `json:"unmet_blockers"`
}

// CreateInput is the payload for task creation.
type CreateInput struct {
	Title          string
	Description    string
	Priority       string
	AssignedTo     string
	Tags           []string
	DueBy          string
	ParentID       string
	ProjectID      string
	MilestoneID    string
	EffortEstimate string
	DependsOn      []string
}

// UpdateInput is the payload for PATCH /tasks/{id}; nil fields are left
// unchanged.
type UpdateInput struct {
	Title          *string
	Description    *string
	Status         *string
	Priority       *string
	AssignedTo     *string
	Tags           *[]string
	DueBy          *string
	EffortEstimate *string
}

// Store provides task operations over the shared relational backend.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

func parseISO8601(s string) (float64, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, apierr.Validation(fmt.Sprintf("invalid ISO-8601 timestamp: %s", s))
	}
	return float64(t.UnixNano()) / 1e9, nil
}

func encodeTags(tags []string) string {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return string(b)
}

func decodeTags(raw string) []string {
	var tags []string
	if raw == "" {
		return []string{}
	}
	if err := json.Unmarshal([]byte(raw), &tags); err != nil {
		return []string{}
	}
	return tags
}

// Create validates and inserts a task, its dependencies, and a creation
// history entry, all in one transaction.
func (s *Store) Create(creator string, in CreateInput) (*Task, error) {
	if in.Title == "" {
		return nil, apierr.Validation("title is required")
	}
	priority := in.Priority
	if priority == "" {
		priority = "normal"
	}
	if !validPriorities[priority] {
		return nil, apierr.Validation("priority must be one of low, normal, high, urgent")
	}

	var dueBy *float64
	if in.DueBy != "" {
		ts, err := parseISO8601(in.DueBy)
		if err != nil {
			return nil, err
		}
		dueBy = &ts
	}

	if in.ParentID != "" {
		var dummy int
		if err := s.db.DB.QueryRow("SELECT 1 FROM tasks WHERE id = ?", in.ParentID).Scan(&dummy); err == sql.ErrNoRows {
			return nil, apierr.Validation("parent task does not exist")
		} else if err != nil {
			return nil, fmt.Errorf("check parent: %w", err)
		}
	}

	now := store.Now()
	t := &Task{
		ID:             uuid.New().String(),
		Title:          in.Title,
		Description:    in.Description,
		Status:         "open",
		Priority:       priority,
		CreatedBy:      creator,
		AssignedTo:     in.AssignedTo,
		Tags:           in.Tags,
		CreatedAt:      now,
		UpdatedAt:      now,
		DueBy:          dueBy,
		ParentID:       in.ParentID,
		ProjectID:      in.ProjectID,
		MilestoneID:    in.MilestoneID,
		EffortEstimate: in.EffortEstimate,
	}

	err := s.db.WithTx(func(tx *sql.Tx) error {
		_, err := tx.Exec(`
			INSERT INTO tasks (id, title, description, status, priority, created_by, assigned_to, tags, created_at, updated_at, due_by, parent_id, project_id, milestone_id, effort_estimate)
			VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			t.ID, t.Title, t.Description, t.Status, t.Priority, t.CreatedBy, nullable(t.AssignedTo), encodeTags(t.Tags),
			t.CreatedAt, t.UpdatedAt, nullableFloat(t.DueBy), nullable(t.ParentID), nullable(t.ProjectID), nullable(t.MilestoneID), nullable(t.EffortEstimate))
		if err != nil {
			return fmt.Errorf("insert task: %w", err)
		}

		for _, dep := range in.DependsOn {
			if dep == t.ID {
				continue
			}
			var exists int
			if err := tx.QueryRow("SELECT 1 FROM tasks WHERE id = ?", dep).Scan(&exists); err != nil {
				continue // ignore invalid dependency ids, per spec.md §4.5
			}
			tx.Exec("INSERT OR IGNORE INTO task_dependencies (task_id, depends_on) VALUES (?, ?)", t.ID, dep)
		}

		_, err = tx.Exec("INSERT INTO task_history (id, task_id, agent_name, action, details, created_at) VALUES (?,?,?,?,?,?)",
			uuid.New().String(), t.ID, creator, "created", "", now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// Get returns a single task by id.
func (s *Store) Get(id string) (*Task, error) {
	return s.scanOne(s.db.DB.QueryRow(taskSelect+" WHERE id = ?", id))
}

const taskSelect = `SELECT id, title, description, status, priority, created_by, assigned_to, claimed_by, tags, created_at, updated_at, completed_at, due_by, parent_id, project_id, milestone_id, effort_estimate FROM tasks`

func (s *Store) scanOne(row *sql.Row) (*Task, error) {
	t := &Task{}
	var assignedTo, claimedBy, parentID, projectID, milestoneID, effort, tags sql.NullString
	var completedAt, dueBy sql.NullFloat64
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedBy, &assignedTo, &claimedBy, &tags,
		&t.CreatedAt, &t.UpdatedAt, &completedAt, &dueBy, &parentID, &projectID, &milestoneID, &effort)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("task not found")
	}
	if err != nil {
		return nil, fmt.Errorf("scan task: %w", err)
	}
	fillTask(t, assignedTo, claimedBy, tags, completedAt, dueBy, parentID, projectID, milestoneID, effort)
	return t, nil
}

func fillTask(t *Task, assignedTo, claimedBy, tags sql.NullString, completedAt, dueBy sql.NullFloat64, parentID, projectID, milestoneID, effort sql.NullString) {
	t.AssignedTo = assignedTo.String
	t.ClaimedBy = claimedBy.String
	t.Tags = decodeTags(tags.String)
	if completedAt.Valid {
		v := completedAt.Float64
		t.CompletedAt = &v
	}
	if dueBy.Valid {
		v := dueBy.Float64
		t.DueBy = &v
	}
	t.ParentID = parentID.String
	t.ProjectID = projectID.String
	t.MilestoneID = milestoneID.String
	t.EffortEstimate = effort.String
}

// ListFilter narrows List results.
type ListFilter struct {
	Status     string
	AssignedTo string
	CreatedBy  string
	ProjectID  string
	Tag        string
}

// List returns tasks matching filter, ordered by priority rank then
// updated_at descending. Tag filtering is applied post-query since tags are
// JSON-encoded in a single column.
func (s *Store) List(f ListFilter) ([]*Task, error) {
	query := taskSelect + " WHERE 1=1"
	var args []interface{}
	if f.Status != "" {
		query += " AND status = ?"
		args = append(args, f.Status)
	}
	if f.AssignedTo != "" {
		query += " AND assigned_to = ?"
		args = append(args, f.AssignedTo)
	}
	if f.CreatedBy != "" {
		query += " AND created_by = ?"
		args = append(args, f.CreatedBy)
	}
	if f.ProjectID != "" {
		query += " AND project_id = ?"
		args = append(args, f.ProjectID)
	}

	rows, err := s.db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	all, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	sortByPriority(all)

	if f.Tag == "" {
		return all, nil
	}
	var out []*Task
	for _, t := range all {
		for _, tag := range t.Tags {
			if tag == f.Tag {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func sortByPriority(tasks []*Task) {
	for i := 1; i < len(tasks); i++ {
		j := i
		for j > 0 && less(tasks[j], tasks[j-1]) {
			tasks[j], tasks[j-1] = tasks[j-1], tasks[j]
			j--
		}
	}
}

func less(a, b *Task) bool {
	ra, rb := priorityRank[a.Priority], priorityRank[b.Priority]
	if ra != rb {
		return ra < rb
	}
	return a.UpdatedAt > b.UpdatedAt
}

func scanTasks(rows *sql.Rows) ([]*Task, error) {
	var out []*Task
	for rows.Next() {
		t := &Task{}
		var assignedTo, claimedBy, parentID, projectID, milestoneID, effort, tags sql.NullString
		var completedAt, dueBy sql.NullFloat64
		if err := rows.Scan(&t.ID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.CreatedBy, &assignedTo, &claimedBy, &tags,
			&t.CreatedAt, &t.UpdatedAt, &completedAt, &dueBy, &parentID, &projectID, &milestoneID, &effort); err != nil {
			return nil, err
		}
		fillTask(t, assignedTo, claimedBy, tags, completedAt, dueBy, parentID, projectID, milestoneID, effort)
		out = append(out, t)
	}
	return out, rows.Err()
}

// Update applies a partial PATCH, accumulating one history entry describing
// every changed field.
func (s *Store) Update(id, actor string, in UpdateInput) (*Task, error) {
	var result *Task
	err := s.db.WithTx(func(tx *sql.Tx) error {
		t, err := s.scanOne(tx.QueryRow(taskSelect+" WHERE id = ?", id))
		if err != nil {
			return err
		}

		var sets []string
		var args []interface{}
		var details []string
		now := store.Now()

		if in.Title != nil && *in.Title != t.Title {
			sets = append(sets, "title = ?")
			args = append(args, *in.Title)
			details = append(details, fmt.Sprintf("title → %q", *in.Title))
		}
		if in.Description != nil && *in.Description != t.Description {
			sets = append(sets, "description = ?")
			args = append(args, *in.Description)
			details = append(details, "description updated")
		}
		if in.Priority != nil && *in.Priority != t.Priority {
			if !validPriorities[*in.Priority] {
				return apierr.Validation("priority must be one of low, normal, high, urgent")
			}
			sets = append(sets, "priority = ?")
			args = append(args, *in.Priority)
			details = append(details, fmt.Sprintf("priority → %s", *in.Priority))
		}
		if in.Status != nil && *in.Status != t.Status {
			if !isValidStatus(*in.Status) {
				return apierr.Validation("invalid status")
			}
			sets = append(sets, "status = ?")
			args = append(args, *in.Status)
			details = append(details, fmt.Sprintf("status → %s", *in.Status))
			if *in.Status == "done" {
				sets = append(sets, "completed_at = ?")
				args = append(args, now)
			}
		}
		if in.AssignedTo != nil && *in.AssignedTo != t.AssignedTo {
			sets = append(sets, "assigned_to = ?")
			args = append(args, nullable(*in.AssignedTo))
			details = append(details, fmt.Sprintf("assigned_to → %s", *in.AssignedTo))
		}
		if in.Tags != nil {
			sets = append(sets, "tags = ?")
			args = append(args, encodeTags(*in.Tags))
			details = append(details, "tags updated")
		}
		if in.DueBy != nil {
			if *in.DueBy == "" {
				sets = append(sets, "due_by = ?")
				args = append(args, nil)
			} else {
				ts, err := parseISO8601(*in.DueBy)
				if err != nil {
					return err
				}
				sets = append(sets, "due_by = ?")
				args = append(args, ts)
			}
			details = append(details, "due_by updated")
		}
		if in.EffortEstimate != nil && *in.EffortEstimate != t.EffortEstimate {
			sets = append(sets, "effort_estimate = ?")
			args = append(args, nullable(*in.EffortEstimate))
			details = append(details, fmt.Sprintf("effort_estimate → %s", *in.EffortEstimate))
		}

		if len(sets) == 0 {
			result = t
			return nil
		}

		sets = append(sets, "updated_at = ?")
		args = append(args, now)
		args = append(args, id)
		q := "UPDATE tasks SET " + joinComma(sets) + " WHERE id = ?"
		if _, err := tx.Exec(q, args...); err != nil {
			return fmt.Errorf("update task: %w", err)
		}

		detail := joinSemicolon(details)
		if _, err := tx.Exec("INSERT INTO task_history (id, task_id, agent_name, action, details, created_at) VALUES (?,?,?,?,?,?)",
			uuid.New().String(), id, actor, "updated", detail, now); err != nil {
			return fmt.Errorf("record history: %w", err)
		}

		result, err = s.scanOne(tx.QueryRow(taskSelect+" WHERE id = ?", id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func isValidStatus(status string) bool {
	switch status {
	case "open", "claimed", "in_progress", "done", "cancelled", "blocked":
		return true
	}
	return false
}

func joinComma(parts []string) string  { return join(parts, ", ") }
func joinSemicolon(parts []string) string { return join(parts, "; ") }

func join(parts []string, sep string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += sep
		}
		out += p
	}
	return out
}

// Claim transitions a task from open to claimed.
func (s *Store) Claim(id, actor string) (*Task, error) {
	return s.transition(id, actor, "claim", func(t *Task) error {
		if t.Status != "open" {
			return apierr.Validation("task is not open")
		}
		t.Status = "claimed"
		t.ClaimedBy = actor
		return nil
	})
}

// Start transitions a task to in_progress. Legal from open or claimed; on
// success sets claimed_by if unset.
func (s *Store) Start(id, actor string) (*Task, error) {
	return s.transition(id, actor, "start", func(t *Task) error {
		if t.Status != "open" && t.Status != "claimed" {
			return apierr.Validation("task must be open or claimed to start")
		}
		t.Status = "in_progress"
		if t.ClaimedBy == "" {
			t.ClaimedBy = actor
		}
		return nil
	})
}

// Complete transitions a task to done from any non-terminal state.
func (s *Store) Complete(id, actor string) (*Task, error) {
	return s.transition(id, actor, "complete", func(t *Task) error {
		if t.Status == "done" || t.Status == "cancelled" {
			return apierr.Validation("task is already finished")
		}
		t.Status = "done"
		now := store.Now()
		t.CompletedAt = &now
		return nil
	})
}

// Block transitions a task to blocked from any status and records the
// given reason as both a history entry and a comment.
func (s *Store) Block(id, actor, reason string) (*Task, error) {
	var result *Task
	err := s.db.WithTx(func(tx *sql.Tx) error {
		t, err := s.scanOne(tx.QueryRow(taskSelect+" WHERE id = ?", id))
		if err != nil {
			return err
		}
		now := store.Now()
		t.Status = "blocked"
		t.UpdatedAt = now

		if _, err := tx.Exec("UPDATE tasks SET status = 'blocked', updated_at = ? WHERE id = ?", now, id); err != nil {
			return fmt.Errorf("update task: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO task_history (id, task_id, agent_name, action, details, created_at) VALUES (?,?,?,?,?,?)",
			uuid.New().String(), id, actor, "blocked", reason, now); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO task_comments (id, task_id, agent_name, content, created_at) VALUES (?,?,?,?,?)",
			uuid.New().String(), id, actor, "🚫 Blocked: "+reason, now); err != nil {
			return fmt.Errorf("record comment: %w", err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) transition(id, actor, action string, apply func(*Task) error) (*Task, error) {
	var result *Task
	err := s.db.WithTx(func(tx *sql.Tx) error {
		t, err := s.scanOne(tx.QueryRow(taskSelect+" WHERE id = ?", id))
		if err != nil {
			return err
		}
		if err := apply(t); err != nil {
			return err
		}
		now := store.Now()
		t.UpdatedAt = now

		if t.CompletedAt != nil {
			if _, err := tx.Exec("UPDATE tasks SET status = ?, claimed_by = ?, completed_at = ?, updated_at = ? WHERE id = ?",
				t.Status, nullable(t.ClaimedBy), *t.CompletedAt, now, id); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
		} else {
			if _, err := tx.Exec("UPDATE tasks SET status = ?, claimed_by = ?, updated_at = ? WHERE id = ?",
				t.Status, nullable(t.ClaimedBy), now, id); err != nil {
				return fmt.Errorf("update task: %w", err)
			}
		}
		if _, err := tx.Exec("INSERT INTO task_history (id, task_id, agent_name, action, details, created_at) VALUES (?,?,?,?,?,?)",
			uuid.New().String(), id, actor, action, "", now); err != nil {
			return fmt.Errorf("record history: %w", err)
		}
		result = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddComment appends an immutable comment and bumps the task's updated_at.
func (s *Store) AddComment(taskID, actor, content string) (*Comment, error) {
	if content == "" {
		return nil, apierr.Validation("content is required")
	}
	c := &Comment{ID: uuid.New().String(), TaskID: taskID, Agent: actor, Content: content, CreatedAt: store.Now()}
	err := s.db.WithTx(func(tx *sql.Tx) error {
		var dummy int
		if err := tx.QueryRow("SELECT 1 FROM tasks WHERE id = ?", taskID).Scan(&dummy); err == sql.ErrNoRows {
			return apierr.NotFound("task not found")
		} else if err != nil {
			return err
		}
		if _, err := tx.Exec("INSERT INTO task_comments (id, task_id, agent_name, content, created_at) VALUES (?,?,?,?,?)",
			c.ID, c.TaskID, c.Agent, c.Content, c.CreatedAt); err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		_, err := tx.Exec("UPDATE tasks SET updated_at = ? WHERE id = ?", c.CreatedAt, taskID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Comments returns a task's comments, ascending by created_at.
func (s *Store) Comments(taskID string) ([]*Comment, error) {
	rows, err := s.db.DB.Query("SELECT id, task_id, agent_name, content, created_at FROM task_comments WHERE task_id = ? ORDER BY created_at ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.TaskID, &c.Agent, &c.Content, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// History returns a task's history entries, ascending by created_at.
func (s *Store) History(taskID string) ([]*HistoryEntry, error) {
	rows, err := s.db.DB.Query("SELECT id, task_id, agent_name, action, details, created_at FROM task_history WHERE task_id = ? ORDER BY created_at ASC", taskID)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()
	var out []*HistoryEntry
	for rows.Next() {
		h := &HistoryEntry{}
		if err := rows.Scan(&h.ID, &h.TaskID, &h.Agent, &h.Action, &h.Details, &h.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// AddDependency records task_id depends_on depends_on. Rejects self-loops,
// requires both tasks to exist, and is idempotent (a PK conflict is
// reported as a 409, not silently ignored, so the caller can distinguish
// "already there" from "created").
func (s *Store) AddDependency(taskID, dependsOn string) error {
	if taskID == dependsOn {
		return apierr.Validation("a task cannot depend on itself")
	}
	var dummy int
	if err := s.db.DB.QueryRow("SELECT 1 FROM tasks WHERE id = ?", taskID).Scan(&dummy); err == sql.ErrNoRows {
		return apierr.NotFound("task not found")
	} else if err != nil {
		return err
	}
	if err := s.db.DB.QueryRow("SELECT 1 FROM tasks WHERE id = ?", dependsOn).Scan(&dummy); err == sql.ErrNoRows {
		return apierr.NotFound("dependency task not found")
	} else if err != nil {
		return err
	}
	if err := s.db.DB.QueryRow(
		"SELECT 1 FROM task_dependencies WHERE task_id = ? AND depends_on = ?", taskID, dependsOn).Scan(&dummy); err == nil {
		return apierr.Conflict("dependency already recorded")
	} else if err != sql.ErrNoRows {
		return err
	}
	_, err := s.db.DB.Exec("INSERT INTO task_dependencies (task_id, depends_on) VALUES (?, ?)", taskID, dependsOn)
	if err != nil {
		return fmt.Errorf("add dependency: %w", err)
	}
	return nil
}

// RemoveDependency deletes a task_id→depends_on edge. Idempotent.
func (s *Store) RemoveDependency(taskID, dependsOn string) error {
	_, err := s.db.DB.Exec("DELETE FROM task_dependencies WHERE task_id = ? AND depends_on = ?", taskID, dependsOn)
	if err != nil {
		return fmt.Errorf("remove dependency: %w", err)
	}
	return nil
}

// GetDependencies returns direct predecessors, their unmet count, and
// direct successors. No cycle detection is performed (spec.md §9 open
// question 3).
func (s *Store) GetDependencies(taskID string) (*Dependencies, error) {
	deps := &Dependencies{}
	rows, err := s.db.DB.Query("SELECT depends_on FROM task_dependencies WHERE task_id = ?", taskID)
	if err != nil {
		return nil, fmt.Errorf("list depends_on: %w", err)
	}
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			rows.Close()
			return nil, err
		}
		deps.DependsOn = append(deps.DependsOn, d)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, d := range deps.DependsOn {
		var status string
		if err := s.db.DB.QueryRow("SELECT status FROM tasks WHERE id = ?", d).Scan(&status); err == nil && status != "done" {
			deps.UnmetBlockers++
		}
	}

	rows, err = s.db.DB.Query("SELECT task_id FROM task_dependencies WHERE depends_on = ?", taskID)
	if err != nil {
		return nil, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		deps.Blocks = append(deps.Blocks, d)
	}
	return deps, rows.Err()
}

// ActiveTasks is the two-bucket shape returned by MyActive: tasks the
// caller created, and tasks claimed by or assigned to the caller —
// either bucket excluding terminal statuses.
type ActiveTasks struct {
	CreatedByMe  []*Task `json:"created_by_me"`
	AssignedToMe []*Task `json:"assigned_to_me"`
}

// MyActive returns the caller's open work split into what they created
// and what is claimed by or assigned to them, neither bucket including
// terminal tasks.
func (s *Store) MyActive(agent string) (*ActiveTasks, error) {
	created, err := s.queryActive(`created_by = ? AND status NOT IN ('done', 'cancelled')`, agent)
	if err != nil {
		return nil, fmt.Errorf("my created tasks: %w", err)
	}
	assigned, err := s.queryActive(`(claimed_by = ? OR assigned_to = ?) AND status NOT IN ('done', 'cancelled')`, agent, agent)
	if err != nil {
		return nil, fmt.Errorf("my assigned tasks: %w", err)
	}
	return &ActiveTasks{CreatedByMe: created, AssignedToMe: assigned}, nil
}

func (s *Store) queryActive(where string, args ...interface{}) ([]*Task, error) {
	rows, err := s.db.DB.Query(taskSelect+" WHERE "+where, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out, err := scanTasks(rows)
	if err != nil {
		return nil, err
	}
	sortByPriority(out)
	return out, nil
}

// MyFeed returns every task touching the caller: created, assigned, or
// claimed, most recently updated first.
func (s *Store) MyFeed(agent string) ([]*Task, error) {
	rows, err := s.db.DB.Query(taskSelect+` WHERE created_by = ? OR assigned_to = ? OR claimed_by = ? ORDER BY updated_at DESC`, agent, agent, agent)
	if err != nil {
		return nil, fmt.Errorf("my task feed: %w", err)
	}
	defer rows.Close()
	return scanTasks(rows)
}

// Board returns up to 50 priority-sorted tasks per status.
func (s *Store) Board() (map[string][]*Task, error) {
	board := map[string][]*Task{}
	for _, status := range []string{"open", "claimed", "in_progress", "blocked", "done"} {
		rows, err := s.db.DB.Query(taskSelect+" WHERE status = ?", status)
		if err != nil {
			return nil, fmt.Errorf("board query: %w", err)
		}
		list, err := scanTasks(rows)
		rows.Close()
		if err != nil {
			return nil, err
		}
		sortByPriority(list)
		if len(list) > 50 {
			list = list[:50]
		}
		board[status] = list
	}
	return board, nil
}

// CountAll returns the total number of tasks, used by the status component.
func (s *Store) CountAll() (int, error) {
	var n int
	err := s.db.DB.QueryRow("SELECT COUNT(*) FROM tasks").Scan(&n)
	return n, err
}
