// Package projects implements project/milestone grouping over the task
// board, per spec.md §4.6.
package projects

import (
	"database/sql"
	"fmt"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/google/uuid"
)

// Project groups tasks, members, milestones, and repos.
type Project struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	CreatedBy   string   `json:"created_by"`
	CreatedAt   float64  `json:"created_at"`
	UpdatedAt   float64  `json:"updated_at"`
	Tags        []string `json:"tags,omitempty"`
	ProgressPct float64  `json:"progress_pct"`
}

// Member is a project membership row.
type Member struct {
	Agent    string  `json:"agent"`
	Role     string  `json:"role"`
	JoinedAt float64 `json:"joined_at"`
}

// Milestone is a dated checkpoint within a project.
type Milestone struct {
	ID          string   `json:"id"`
	ProjectID   string   `json:"project_id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	DueBy       *float64 `json:"due_by,omitempty"`
	Status      string   `json:"status"`
	CreatedAt   float64  `json:"created_at"`
	ProgressPct float64  `json:"progress_pct"`
}

// Store provides project operations over the shared relational backend.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

// Create makes the creator the sole owner-role member.
func (s *Store) Create(creator, name, description string) (*Project, error) {
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	now := store.Now()
	p := &Project{
		ID:          uuid.New().String(),
		Name:        name,
		Description: description,
		Status:      "active",
		CreatedBy:   creator,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.db.WithTx(func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO projects (id, name, description, status, created_by, created_at, updated_at) VALUES (?,?,?,?,?,?,?)",
			p.ID, p.Name, p.Description, p.Status, p.CreatedBy, p.CreatedAt, p.UpdatedAt); err != nil {
			return fmt.Errorf("insert project: %w", err)
		}
		if _, err := tx.Exec("INSERT INTO project_members (project_id, agent_id, role, joined_at) VALUES (?, ?, 'owner', ?)",
			p.ID, creator, now); err != nil {
			return fmt.Errorf("add owner: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// List returns every project with its computed progress_pct.
func (s *Store) List() ([]*Project, error) {
	rows, err := s.db.DB.Query("SELECT id, name, description, status, created_by, created_at, updated_at FROM projects ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var out []*Project
	for rows.Next() {
		p := &Project{}
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, p := range out {
		pct, err := s.progress(p.ID)
		if err != nil {
			return nil, err
		}
		p.ProgressPct = pct
	}
	return out, nil
}

func (s *Store) progress(projectID string) (float64, error) {
	var total, done int
	if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM tasks WHERE project_id = ?", projectID).Scan(&total); err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	if total == 0 {
		return 0, nil
	}
	if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM tasks WHERE project_id = ? AND status = 'done'", projectID).Scan(&done); err != nil {
		return 0, fmt.Errorf("count done tasks: %w", err)
	}
	return 100 * float64(done) / float64(total), nil
}

// ProjectDetail is the full payload for GET /projects/{id}.
type ProjectDetail struct {
	Project    *Project     `json:"project"`
	Members    []Member     `json:"members"`
	Tasks      []interface{} `json:"tasks"`
	Milestones []*Milestone `json:"milestones"`
	Repos      []string     `json:"repos"`
}

// Get returns a project, its members, its milestones ordered by due date
// (nulls last), and its repo names. The caller supplies a task-fetch
// callback so this package does not import the tasks package directly.
func (s *Store) Get(id string, fetchTasks func(projectID string) ([]interface{}, error)) (*ProjectDetail, error) {
	p := &Project{}
	err := s.db.DB.QueryRow("SELECT id, name, description, status, created_by, created_at, updated_at FROM projects WHERE id = ?", id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Status, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("project not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get project: %w", err)
	}
	pct, err := s.progress(id)
	if err != nil {
		return nil, err
	}
	p.ProgressPct = pct

	rows, err := s.db.DB.Query("SELECT agent_id, role, joined_at FROM project_members WHERE project_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	var members []Member
	for rows.Next() {
		var m Member
		if err := rows.Scan(&m.Agent, &m.Role, &m.JoinedAt); err != nil {
			rows.Close()
			return nil, err
		}
		members = append(members, m)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	milestones, err := s.listMilestones(id)
	if err != nil {
		return nil, err
	}

	repoRows, err := s.db.DB.Query("SELECT name FROM git_repos WHERE project_id = ?", id)
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	var repos []string
	for repoRows.Next() {
		var r string
		if err := repoRows.Scan(&r); err != nil {
			repoRows.Close()
			return nil, err
		}
		repos = append(repos, r)
	}
	repoRows.Close()
	if err := repoRows.Err(); err != nil {
		return nil, err
	}

	var tasks []interface{}
	if fetchTasks != nil {
		tasks, err = fetchTasks(id)
		if err != nil {
			return nil, err
		}
	}

	return &ProjectDetail{Project: p, Members: members, Tasks: tasks, Milestones: milestones, Repos: repos}, nil
}

// AddMember adds a role-less ("member") participant. Idempotent.
func (s *Store) AddMember(projectID, agent string) error {
	var dummy int
	if err := s.db.DB.QueryRow("SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&dummy); err == sql.ErrNoRows {
		return apierr.NotFound("project not found")
	} else if err != nil {
		return err
	}
	_, err := s.db.DB.Exec("INSERT OR IGNORE INTO project_members (project_id, agent_id, role, joined_at) VALUES (?, ?, 'member', ?)",
		projectID, agent, store.Now())
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

// CreateMilestone adds a milestone with an optional parsed due date.
func (s *Store) CreateMilestone(projectID, name, description string, dueBy *float64) (*Milestone, error) {
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	var dummy int
	if err := s.db.DB.QueryRow("SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&dummy); err == sql.ErrNoRows {
		return nil, apierr.NotFound("project not found")
	} else if err != nil {
		return nil, err
	}

	m := &Milestone{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Name:        name,
		Description: description,
		DueBy:       dueBy,
		Status:      "open",
		CreatedAt:   store.Now(),
	}
	_, err := s.db.DB.Exec("INSERT INTO milestones (id, project_id, name, description, due_by, status, created_at) VALUES (?,?,?,?,?,?,?)",
		m.ID, m.ProjectID, m.Name, m.Description, nullableFloat(m.DueBy), m.Status, m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert milestone: %w", err)
	}
	return m, nil
}

func nullableFloat(f *float64) interface{} {
	if f == nil {
		return nil
	}
	return *f
}

// ListMilestones returns a project's milestones ordered by due date
// ascending (nulls last), each carrying its own progress_pct.
func (s *Store) ListMilestones(projectID string) ([]*Milestone, error) {
	return s.listMilestones(projectID)
}

func (s *Store) listMilestones(projectID string) ([]*Milestone, error) {
	rows, err := s.db.DB.Query(`
		SELECT id, project_id, name, description, due_by, status, created_at
		FROM milestones WHERE project_id = ?
		ORDER BY (due_by IS NULL), due_by ASC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list milestones: %w", err)
	}
	defer rows.Close()

	var out []*Milestone
	for rows.Next() {
		m := &Milestone{}
		var dueBy sql.NullFloat64
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.Name, &m.Description, &dueBy, &m.Status, &m.CreatedAt); err != nil {
			return nil, err
		}
		if dueBy.Valid {
			v := dueBy.Float64
			m.DueBy = &v
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, m := range out {
		var total, done int
		if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM tasks WHERE milestone_id = ?", m.ID).Scan(&total); err != nil {
			return nil, fmt.Errorf("count milestone tasks: %w", err)
		}
		if total > 0 {
			if err := s.db.DB.QueryRow("SELECT COUNT(*) FROM tasks WHERE milestone_id = ? AND status = 'done'", m.ID).Scan(&done); err != nil {
				return nil, fmt.Errorf("count milestone done: %w", err)
			}
			m.ProgressPct = 100 * float64(done) / float64(total)
		}
	}
	return out, nil
}
