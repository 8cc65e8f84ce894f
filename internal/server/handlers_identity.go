package server

import (
	"net/http"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/gorilla/mux"
)

type registerRequest struct {
	Name        string `json:"name"`
	AdminSecret string `json:"admin_secret"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	secret := req.AdminSecret
	if h := adminSecret(r); h != "" {
		secret = h
	}
	agent, key, err := s.identity.RegisterDirect(req.Name, secret, s.cfg.AdminSecret)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"agent": agent, "api_key": key})
}

type joinRequest struct {
	AgentName   string `json:"agent_name"`
	Description string `json:"description"`
	Contact     string `json:"contact"`
}

func (s *Server) handleJoinRequest(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	reg, err := s.identity.JoinRequest(req.AgentName, req.Description, req.Contact)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, reg)
}

func (s *Server) handleJoinList(w http.ResponseWriter, r *http.Request) {
	regs, err := s.identity.ListPending()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"registrations": regs})
}

func (s *Server) handleJoinStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	reg, err := s.identity.JoinStatus(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, reg)
}

func (s *Server) handleJoinApprove(w http.ResponseWriter, r *http.Request) {
	approver, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	agent, key, err := s.identity.Approve(id, approver)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"agent": agent, "api_key": key})
}

func (s *Server) handleJoinReject(w http.ResponseWriter, r *http.Request) {
	approver, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	reg, err := s.identity.Reject(id, approver)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, reg)
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	agents, err := s.identity.ListAgents()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"agents": agents})
}

func (s *Server) handleAdminKeys(w http.ResponseWriter, r *http.Request) {
	if s.cfg.AdminSecret == "" || adminSecret(r) != s.cfg.AdminSecret {
		apierr.Write(w, apierr.Forbidden("bad admin secret"))
		return
	}
	keys, err := s.identity.ListKeys()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"agents": keys})
}

// requireAgent resolves the caller's API key, returning an AuthError if
// missing or unknown.
func (s *Server) requireAgent(r *http.Request) (string, error) {
	return s.identity.Authenticate(apiKey(r))
}

// optionalAgent resolves the caller's API key if present, without error
// when absent or unknown.
func (s *Server) optionalAgent(r *http.Request) string {
	name, _ := s.identity.OptionalAuthenticate(apiKey(r))
	return name
}
