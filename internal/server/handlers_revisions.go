package server

import (
	"net/http"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/revisions"
	"github.com/gorilla/mux"
)

type createRepoRequest struct {
	Name          string `json:"name"`
	Description   string `json:"description"`
	DefaultBranch string `json:"default_branch"`
	ProjectID     string `json:"project_id"`
}

func (s *Server) handleCreateRepo(w http.ResponseWriter, r *http.Request) {
	creator, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req createRepoRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	repo, err := s.revisions.CreateRepo(req.Name, req.Description, creator, req.DefaultBranch, req.ProjectID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, repo)
}

func (s *Server) handleListRepos(w http.ResponseWriter, r *http.Request) {
	list, err := s.revisions.ListRepos()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"repos": list})
}

func (s *Server) handleGetRepo(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	repo, err := s.revisions.GetRepo(name)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, repo)
}

type commitFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
	Action  string `json:"action"`
}

type commitRequest struct {
	Message string              `json:"message"`
	Branch  string              `json:"branch"`
	Files   []commitFileRequest `json:"files"`
}

func (s *Server) handleCommit(w http.ResponseWriter, r *http.Request) {
	author, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	name := mux.Vars(r)["name"]
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	files := make([]revisions.CommitInput, len(req.Files))
	for i, f := range req.Files {
		files[i] = revisions.CommitInput{Path: f.Path, Content: f.Content, Action: f.Action}
	}
	c, err := s.revisions.Commit(name, req.Branch, author, req.Message, files)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, c)
}

func (s *Server) handleLog(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	branch := r.URL.Query().Get("branch")
	log, err := s.revisions.Log(name, branch)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"commits": log})
}

func (s *Server) handleTree(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	branch := r.URL.Query().Get("branch")
	tree, err := s.revisions.Tree(name, branch)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"tree": tree})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	branch := r.URL.Query().Get("branch")
	content, err := s.revisions.ReadFile(v["name"], branch, v["path"])
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"path": v["path"], "content": content})
}

func (s *Server) handleDiff(w http.ResponseWriter, r *http.Request) {
	v := mux.Vars(r)
	diff, err := s.revisions.Diff(v["commit"])
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"files": diff})
}
