package server

import (
	"net/http"
	"strconv"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/gorilla/mux"
)

type sendRequest struct {
	To      string `json:"to"`
	Content string `json:"content"`
}

func (s *Server) handleSend(w http.ResponseWriter, r *http.Request) {
	from, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req sendRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	msg, err := s.messaging.SendDM(from, req.To, req.Content)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, msg)
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	since := floatQuery(r, "since", 0)
	limit := intQuery(r, "limit", 100)
	msgs, err := s.messaging.Inbox(caller, since, limit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"messages": msgs})
}

func (s *Server) handleInboxRead(w http.ResponseWriter, r *http.Request) {
	if _, err := s.requireAgent(r); err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.messaging.MarkRead(id); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	withAgent := r.URL.Query().Get("with_agent")
	limit := intQuery(r, "limit", 100)
	msgs, err := s.messaging.History(caller, withAgent, limit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"messages": msgs})
}

type createConversationRequest struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

func (s *Server) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	var req createConversationRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	conv, err := s.messaging.CreateGroup(req.Name, caller, req.Members)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, conv)
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	convs, err := s.messaging.ListConversations(caller)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"conversations": convs})
}

func (s *Server) handleGetConversation(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	conv, err := s.messaging.GetConversation(id, caller)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, conv)
}

type conversationSendRequest struct {
	Content string `json:"content"`
}

func (s *Server) handleConversationSend(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req conversationSendRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	msg, err := s.messaging.SendToConversation(id, caller, req.Content)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, msg)
}

type inviteRequest struct {
	Agent string `json:"agent"`
}

func (s *Server) handleConversationInvite(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	var req inviteRequest
	if err := decodeJSON(r, &req); err != nil {
		apierr.Write(w, apierr.Validation("invalid request body"))
		return
	}
	if err := s.messaging.Invite(id, caller, req.Agent); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

func (s *Server) handleConversationLeave(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.messaging.Leave(id, caller); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

func (s *Server) handleConversationMessages(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	limit := intQuery(r, "limit", 100)
	msgs, err := s.messaging.ConversationMessages(id, caller, limit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"messages": msgs})
}

func intQuery(r *http.Request, key string, def int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func floatQuery(r *http.Request, key string, def float64) float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}
