package server

import (
	"net/http"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/tasks"
	"github.com/gorilla/mux"
)

type createTaskRequest struct {
	Title          string   `json:"title"`
	Description    string   `json:"description"`
	Priority       string   `json:"priority"`
	AssignedTo     string   `json:"assigned_to"`
	Tags           []string `json:"tags"`
	DueBy          string   `json:"due_by"`
	ParentID       string   `json:"parent_id"`
	ProjectID      string   `json:"project_id"`
	MilestoneID    string   `json:"milestone_id"`
	EffortEstimate string   `json:"effort_estimate"`
	DependsOn      []string `json:"depends_on"`
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	creator, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req createTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	t, err := s.tasks.Create(creator, tasks.CreateInput{
		Title: req.Title, Description: req.Description, Priority: req.Priority, AssignedTo: req.AssignedTo,
		Tags: req.Tags, DueBy: req.DueBy, ParentID: req.ParentID, ProjectID: req.ProjectID,
		MilestoneID: req.MilestoneID, EffortEstimate: req.EffortEstimate, DependsOn: req.DependsOn,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, t)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	list, err := s.tasks.List(tasks.ListFilter{
		Status: q.Get("status"), AssignedTo: q.Get("assigned_to"), CreatedBy: q.Get("created_by"),
		ProjectID: q.Get("project_id"), Tag: q.Get("tag"),
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"tasks": list})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.tasks.Get(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	comments, err := s.tasks.Comments(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	history, err := s.tasks.History(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"task": t, "comments": comments, "history": history})
}

type updateTaskRequest struct {
	Title          *string   `json:"title"`
	Description    *string   `json:"description"`
	Status         *string   `json:"status"`
	Priority       *string   `json:"priority"`
	AssignedTo     *string   `json:"assigned_to"`
	Tags           *[]string `json:"tags"`
	DueBy          *string   `json:"due_by"`
	EffortEstimate *string   `json:"effort_estimate"`
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	actor, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req updateTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	t, err := s.tasks.Update(id, actor, tasks.UpdateInput{
		Title: req.Title, Description: req.Description, Status: req.Status, Priority: req.Priority,
		AssignedTo: req.AssignedTo, Tags: req.Tags, DueBy: req.DueBy, EffortEstimate: req.EffortEstimate,
	})
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, t)
}

func (s *Server) handleClaimTask(w http.ResponseWriter, r *http.Request) {
	s.taskTransition(w, r, s.tasks.Claim)
}

func (s *Server) handleStartTask(w http.ResponseWriter, r *http.Request) {
	s.taskTransition(w, r, s.tasks.Start)
}

func (s *Server) handleCompleteTask(w http.ResponseWriter, r *http.Request) {
	s.taskTransition(w, r, s.tasks.Complete)
}

func (s *Server) taskTransition(w http.ResponseWriter, r *http.Request, fn func(id, actor string) (*tasks.Task, error)) {
	actor, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	t, err := fn(id, actor)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, t)
}

type blockTaskRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleBlockTask(w http.ResponseWriter, r *http.Request) {
	actor, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req blockTaskRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	t, err := s.tasks.Block(id, actor, req.Reason)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, t)
}

type addCommentRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	actor, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req addCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	c, err := s.tasks.AddComment(id, actor, req.Content)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, c)
}

func (s *Server) handleMyActiveTasks(w http.ResponseWriter, r *http.Request) {
	agent, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	active, err := s.tasks.MyActive(agent)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, active)
}

func (s *Server) handleMyTaskFeed(w http.ResponseWriter, r *http.Request) {
	agent, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	list, err := s.tasks.MyFeed(agent)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"tasks": list})
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	board, err := s.tasks.Board()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, board)
}

type addDependencyRequest struct {
	DependsOn string `json:"depends_on"`
}

func (s *Server) handleAddDependency(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAgent(r); err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req addDependencyRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.tasks.AddDependency(id, req.DependsOn); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

func (s *Server) handleGetDependencies(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	deps, err := s.tasks.GetDependencies(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, deps)
}

func (s *Server) handleRemoveDependency(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAgent(r); err != nil {
		apierr.Write(w, err)
		return
	}
	v := mux.Vars(r)
	if err := s.tasks.RemoveDependency(v["id"], v["depId"]); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}
