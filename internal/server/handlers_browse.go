package server

import (
	"net/http"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/gorilla/mux"
)

func (s *Server) handleBrowseConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.browse.ListAllConversations()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"conversations": list})
}

func (s *Server) handleBrowseConversation(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	limit := intQuery(r, "limit", 100)
	conv, msgs, err := s.browse.BrowseConversation(id, limit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"conversation": conv, "messages": msgs})
}

func (s *Server) handleAllMessages(w http.ResponseWriter, r *http.Request) {
	limit := intQuery(r, "limit", 100)
	msgs, err := s.messaging.AllMessages(limit)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"messages": msgs})
}
