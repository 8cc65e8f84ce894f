// Package revisions implements the append-only "agent git" revision log of
// spec.md §4.7: repos, branch heads, linear per-branch commits, tree
// materialization, file reads, and unified diffs.
package revisions

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/google/uuid"
)

// Repo is a named revision-controlled container.
type Repo struct {
	ID            string  `json:"id"`
	Name          string  `json:"name"`
	Description   string  `json:"description,omitempty"`
	CreatedBy     string  `json:"created_by"`
	CreatedAt     float64 `json:"created_at"`
	DefaultBranch string  `json:"default_branch"`
	ProjectID     string  `json:"project_id,omitempty"`
}

// CommitFile is one file attached to a commit.
type CommitFile struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
	Action  string `json:"action"`
}

// Commit is one node in a branch's linear chain.
type Commit struct {
	ID        string       `json:"id"`
	RepoID    string       `json:"repo_id"`
	Branch    string       `json:"branch"`
	Author    string       `json:"author"`
	Message   string       `json:"message"`
	CreatedAt float64      `json:"created_at"`
	ParentID  string       `json:"parent_id,omitempty"`
	Files     []LogFile    `json:"files,omitempty"`
}

// LogFile is the file summary shown in `log` output.
type LogFile struct {
	Path   string `json:"path"`
	Action string `json:"action"`
	Size   int    `json:"size"`
	SHA256 string `json:"sha256"`
}

// TreeEntry is one materialized path in `tree` output.
type TreeEntry struct {
	Path   string `json:"path"`
	SHA256 string `json:"sha256"`
	Size   int    `json:"size"`
}

// Store provides revision operations over the shared relational backend.
type Store struct {
	db *store.Store
}

func New(db *store.Store) *Store {
	return &Store{db: db}
}

// CreateRepo creates a named container. Names are unique.
func (s *Store) CreateRepo(name, description, creator, defaultBranch, projectID string) (*Repo, error) {
	if name == "" {
		return nil, apierr.Validation("name is required")
	}
	if defaultBranch == "" {
		defaultBranch = "main"
	}
	r := &Repo{
		ID:            uuid.New().String(),
		Name:          name,
		Description:   description,
		CreatedBy:     creator,
		CreatedAt:     store.Now(),
		DefaultBranch: defaultBranch,
		ProjectID:     projectID,
	}
	_, err := s.db.DB.Exec("INSERT INTO git_repos (id, name, description, created_by, created_at, default_branch, project_id) VALUES (?,?,?,?,?,?,?)",
		r.ID, r.Name, r.Description, r.CreatedBy, r.CreatedAt, r.DefaultBranch, nullable(r.ProjectID))
	if err != nil {
		return nil, apierr.Conflict(fmt.Sprintf("repo %q already exists", name))
	}
	return r, nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// ListRepos returns every repo.
func (s *Store) ListRepos() ([]*Repo, error) {
	rows, err := s.db.DB.Query("SELECT id, name, description, created_by, created_at, default_branch, project_id FROM git_repos ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	defer rows.Close()
	var out []*Repo
	for rows.Next() {
		r := &Repo{}
		var projectID sql.NullString
		if err := rows.Scan(&r.ID, &r.Name, &r.Description, &r.CreatedBy, &r.CreatedAt, &r.DefaultBranch, &projectID); err != nil {
			return nil, err
		}
		r.ProjectID = projectID.String
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetRepo returns one repo by name.
func (s *Store) GetRepo(name string) (*Repo, error) {
	r := &Repo{}
	var projectID sql.NullString
	err := s.db.DB.QueryRow("SELECT id, name, description, created_by, created_at, default_branch, project_id FROM git_repos WHERE name = ?", name).
		Scan(&r.ID, &r.Name, &r.Description, &r.CreatedBy, &r.CreatedAt, &r.DefaultBranch, &projectID)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("repo not found")
	}
	if err != nil {
		return nil, fmt.Errorf("get repo: %w", err)
	}
	r.ProjectID = projectID.String
	return r, nil
}

// CommitInput is one file change in a commit request.
type CommitInput struct {
	Path    string
	Content string
	Action  string // add, modify, delete
}

// Commit creates the branch (with null parent) if absent, then appends a
// new commit whose parent is the branch's current head, inserting a
// git_files row per file and advancing the head. One transaction, no
// conflict detection — last write wins at the branch head (spec.md §9
// open question 5).
func (s *Store) Commit(repoName, branch, author, message string, files []CommitInput) (*Commit, error) {
	if branch == "" {
		branch = "main"
	}
	if len(files) == 0 {
		return nil, apierr.Validation("at least one file is required")
	}
	for _, f := range files {
		if f.Action != "add" && f.Action != "modify" && f.Action != "delete" {
			return nil, apierr.Validation(fmt.Sprintf("invalid action %q", f.Action))
		}
	}

	repo, err := s.GetRepo(repoName)
	if err != nil {
		return nil, err
	}

	c := &Commit{
		ID:        uuid.New().String(),
		RepoID:    repo.ID,
		Branch:    branch,
		Author:    author,
		Message:   message,
		CreatedAt: store.Now(),
	}

	err = s.db.WithTx(func(tx *sql.Tx) error {
		var head sql.NullString
		err := tx.QueryRow("SELECT head_commit FROM git_branches WHERE repo_id = ? AND name = ?", repo.ID, branch).Scan(&head)
		if err == sql.ErrNoRows {
			if _, err := tx.Exec("INSERT INTO git_branches (repo_id, name, head_commit) VALUES (?, ?, NULL)", repo.ID, branch); err != nil {
				return fmt.Errorf("create branch: %w", err)
			}
		} else if err != nil {
			return fmt.Errorf("lookup branch head: %w", err)
		} else {
			c.ParentID = head.String
		}

		if _, err := tx.Exec("INSERT INTO git_commits (id, repo_id, branch, author, message, created_at, parent_id) VALUES (?,?,?,?,?,?,?)",
			c.ID, c.RepoID, c.Branch, c.Author, c.Message, c.CreatedAt, nullable(c.ParentID)); err != nil {
			return fmt.Errorf("insert commit: %w", err)
		}

		for _, f := range files {
			sum := sha256.Sum256([]byte(f.Content))
			hash := hex.EncodeToString(sum[:])
			size := len(f.Content)
			if _, err := tx.Exec("INSERT INTO git_files (id, commit_id, path, content, sha256, size, action) VALUES (?,?,?,?,?,?,?)",
				uuid.New().String(), c.ID, f.Path, f.Content, hash, size, f.Action); err != nil {
				return fmt.Errorf("insert file: %w", err)
			}
			c.Files = append(c.Files, LogFile{Path: f.Path, Action: f.Action, Size: size, SHA256: hash})
		}

		if _, err := tx.Exec("UPDATE git_branches SET head_commit = ? WHERE repo_id = ? AND name = ?", c.ID, repo.ID, branch); err != nil {
			return fmt.Errorf("advance branch head: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

// chain returns every commit id on branch, newest first, by walking parent
// pointers from the branch head.
func (s *Store) chain(repoID, branch string) ([]string, error) {
	var head sql.NullString
	err := s.db.DB.QueryRow("SELECT head_commit FROM git_branches WHERE repo_id = ? AND name = ?", repoID, branch).Scan(&head)
	if err == sql.ErrNoRows || !head.Valid {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup branch head: %w", err)
	}

	var chain []string
	cur := head.String
	for cur != "" {
		chain = append(chain, cur)
		var parent sql.NullString
		if err := s.db.DB.QueryRow("SELECT parent_id FROM git_commits WHERE id = ?", cur).Scan(&parent); err != nil {
			return nil, fmt.Errorf("walk parent chain: %w", err)
		}
		cur = parent.String
	}
	return chain, nil
}

// Tree materializes the path→content state of branch by walking the commit
// chain newest-to-oldest and keeping the first-seen action per path.
// Deleted paths are filtered out. Result is sorted by path.
func (s *Store) Tree(repoName, branch string) ([]TreeEntry, error) {
	repo, err := s.GetRepo(repoName)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	chain, err := s.chain(repo.ID, branch)
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	entries := map[string]TreeEntry{}
	for _, commitID := range chain {
		rows, err := s.db.DB.Query("SELECT path, sha256, size, action FROM git_files WHERE commit_id = ?", commitID)
		if err != nil {
			return nil, fmt.Errorf("list commit files: %w", err)
		}
		for rows.Next() {
			var path, hash, action string
			var size int
			if err := rows.Scan(&path, &hash, &size, &action); err != nil {
				rows.Close()
				return nil, err
			}
			if seen[path] {
				continue
			}
			seen[path] = true
			if action != "delete" {
				entries[path] = TreeEntry{Path: path, SHA256: hash, Size: size}
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}

	out := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// ReadFile returns the most recent non-deleted content for path on branch.
func (s *Store) ReadFile(repoName, branch, path string) (string, error) {
	repo, err := s.GetRepo(repoName)
	if err != nil {
		return "", err
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	chain, err := s.chain(repo.ID, branch)
	if err != nil {
		return "", err
	}
	for _, commitID := range chain {
		var content, action string
		err := s.db.DB.QueryRow("SELECT content, action FROM git_files WHERE commit_id = ? AND path = ?", commitID, path).Scan(&content, &action)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("read file: %w", err)
		}
		if action == "delete" {
			return "", apierr.NotFound(fmt.Sprintf("%s does not exist at this point in history", path))
		}
		return content, nil
	}
	return "", apierr.NotFound(fmt.Sprintf("%s not found", path))
}

// Log returns commits on branch, reverse-chronological, each with its file
// summary.
func (s *Store) Log(repoName, branch string) ([]*Commit, error) {
	repo, err := s.GetRepo(repoName)
	if err != nil {
		return nil, err
	}
	if branch == "" {
		branch = repo.DefaultBranch
	}
	chain, err := s.chain(repo.ID, branch)
	if err != nil {
		return nil, err
	}

	out := make([]*Commit, 0, len(chain))
	for _, commitID := range chain {
		c := &Commit{}
		var parent sql.NullString
		err := s.db.DB.QueryRow("SELECT id, repo_id, branch, author, message, created_at, parent_id FROM git_commits WHERE id = ?", commitID).
			Scan(&c.ID, &c.RepoID, &c.Branch, &c.Author, &c.Message, &c.CreatedAt, &parent)
		if err != nil {
			return nil, fmt.Errorf("load commit: %w", err)
		}
		c.ParentID = parent.String

		rows, err := s.db.DB.Query("SELECT path, action, size, sha256 FROM git_files WHERE commit_id = ?", commitID)
		if err != nil {
			return nil, fmt.Errorf("load commit files: %w", err)
		}
		for rows.Next() {
			var f LogFile
			if err := rows.Scan(&f.Path, &f.Action, &f.Size, &f.SHA256); err != nil {
				rows.Close()
				return nil, err
			}
			c.Files = append(c.Files, f)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// DiffFile is one file's unified-diff text within a commit's diff output.
type DiffFile struct {
	Path string `json:"path"`
	Diff string `json:"diff"`
}

// Diff produces per-file unified-diff text for a commit: "add" gets a
// new-file stub, "delete" a deleted-file stub, "modify" a real unified diff
// against the most recent earlier version of the same path on the same
// branch.
func (s *Store) Diff(commitID string) ([]DiffFile, error) {
	var repoID, branch string
	var createdAt float64
	err := s.db.DB.QueryRow("SELECT repo_id, branch, created_at FROM git_commits WHERE id = ?", commitID).Scan(&repoID, &branch, &createdAt)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("commit not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load commit: %w", err)
	}

	rows, err := s.db.DB.Query("SELECT path, content, size, action FROM git_files WHERE commit_id = ?", commitID)
	if err != nil {
		return nil, fmt.Errorf("load commit files: %w", err)
	}
	defer rows.Close()

	var out []DiffFile
	for rows.Next() {
		var path, content, action string
		var size int
		if err := rows.Scan(&path, &content, &size, &action); err != nil {
			return nil, err
		}
		switch action {
		case "add":
			out = append(out, DiffFile{Path: path, Diff: fmt.Sprintf("new file, %d bytes", size)})
		case "delete":
			prev, perr := s.priorContent(repoID, branch, path, commitID)
			if perr != nil {
				return nil, perr
			}
			out = append(out, DiffFile{Path: path, Diff: "file deleted\n" + unifiedDiff(prev, "", "a/"+path, "/dev/null")})
		case "modify":
			prev, perr := s.priorContent(repoID, branch, path, commitID)
			if perr != nil {
				return nil, perr
			}
			out = append(out, DiffFile{Path: path, Diff: unifiedDiff(prev, content, "a/"+path, "b/"+path)})
		}
	}
	return out, rows.Err()
}

// priorContent finds the content of path on branch at the most recent
// commit strictly before excludeCommit.
func (s *Store) priorContent(repoID, branch, path, excludeCommit string) (string, error) {
	chain, err := s.chain(repoID, branch)
	if err != nil {
		return "", err
	}
	skipping := true
	for _, commitID := range chain {
		if skipping {
			if commitID == excludeCommit {
				skipping = false
			}
			continue
		}
		var content, action string
		err := s.db.DB.QueryRow("SELECT content, action FROM git_files WHERE commit_id = ? AND path = ?", commitID, path).Scan(&content, &action)
		if err == sql.ErrNoRows {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("prior content: %w", err)
		}
		if action == "delete" {
			return "", nil
		}
		return content, nil
	}
	return "", nil
}

// unifiedDiff produces a minimal unified-diff rendering of two texts. No
// third-party diff library appeared anywhere in the example pack, so this
// implements the standard longest-common-subsequence line diff directly
// (see DESIGN.md).
func unifiedDiff(a, b, aLabel, bLabel string) string {
	aLines := splitLines(a)
	bLines := splitLines(b)
	ops := lcsDiff(aLines, bLines)

	var sb strings.Builder
	fmt.Fprintf(&sb, "--- %s\n", aLabel)
	fmt.Fprintf(&sb, "+++ %s\n", bLabel)
	for _, op := range ops {
		switch op.kind {
		case opEqual:
			sb.WriteString(" " + op.line + "\n")
		case opDelete:
			sb.WriteString("-" + op.line + "\n")
		case opInsert:
			sb.WriteString("+" + op.line + "\n")
		}
	}
	return sb.String()
}

func splitLines(s string) []string {
	if s == "" {
		return nil
	}
	return strings.Split(s, "\n")
}

type diffOpKind int

const (
	opEqual diffOpKind = iota
	opDelete
	opInsert
)

type diffOp struct {
	kind diffOpKind
	line string
}

// lcsDiff computes a line-level diff via dynamic-programming longest common
// subsequence, then backtracks into equal/delete/insert operations.
func lcsDiff(a, b []string) []diffOp {
	n, m := len(a), len(b)
	dp := make([][]int, n+1)
	for i := range dp {
		dp[i] = make([]int, m+1)
	}
	for i := n - 1; i >= 0; i-- {
		for j := m - 1; j >= 0; j-- {
			if a[i] == b[j] {
				dp[i][j] = dp[i+1][j+1] + 1
			} else if dp[i+1][j] >= dp[i][j+1] {
				dp[i][j] = dp[i+1][j]
			} else {
				dp[i][j] = dp[i][j+1]
			}
		}
	}

	var ops []diffOp
	i, j := 0, 0
	for i < n && j < m {
		switch {
		case a[i] == b[j]:
			ops = append(ops, diffOp{opEqual, a[i]})
			i++
			j++
		case dp[i+1][j] >= dp[i][j+1]:
			ops = append(ops, diffOp{opDelete, a[i]})
			i++
		default:
			ops = append(ops, diffOp{opInsert, b[j]})
			j++
		}
	}
	for ; i < n; i++ {
		ops = append(ops, diffOp{opDelete, a[i]})
	}
	for ; j < m; j++ {
		ops = append(ops, diffOp{opInsert, b[j]})
	}
	return ops
}

// CountAll returns the total number of commits, used by the status
// component.
func (s *Store) CountAll() (int, error) {
	var n int
	err := s.db.DB.QueryRow("SELECT COUNT(*) FROM git_commits").Scan(&n)
	return n, err
}
