package server

import (
	"net/http"
	"time"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/tasks"
	"github.com/gorilla/mux"
)

type createProjectRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	creator, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req createProjectRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	p, err := s.projects.Create(creator, req.Name, req.Description)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, p)
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := s.projects.List()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"projects": list})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	detail, err := s.projects.Get(id, func(projectID string) ([]interface{}, error) {
		list, err := s.tasks.List(tasks.ListFilter{ProjectID: projectID})
		if err != nil {
			return nil, err
		}
		out := make([]interface{}, len(list))
		for i, t := range list {
			out[i] = t
		}
		return out, nil
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, detail)
}

type addProjectMemberRequest struct {
	Agent string `json:"agent"`
}

func (s *Server) handleAddProjectMember(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAgent(r); err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req addProjectMemberRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.projects.AddMember(id, req.Agent); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

type createMilestoneRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	DueBy       string `json:"due_by"`
}

func (s *Server) handleCreateMilestone(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAgent(r); err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req createMilestoneRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	var dueBy *float64
	if req.DueBy != "" {
		t, err := time.Parse(time.RFC3339, req.DueBy)
		if err != nil {
			apierr.Write(w, apierr.Validation("invalid ISO-8601 due_by"))
			return
		}
		ts := float64(t.UnixNano()) / 1e9
		dueBy = &ts
	}
	m, err := s.projects.CreateMilestone(id, req.Name, req.Description, dueBy)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, m)
}

func (s *Server) handleListMilestones(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	list, err := s.projects.ListMilestones(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"milestones": list})
}
