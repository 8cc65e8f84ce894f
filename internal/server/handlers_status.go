package server

import "net/http"

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.status.Root())
}

func (s *Server) handleStatusReport(w http.ResponseWriter, r *http.Request) {
	writeOK(w, s.status.StatusReport())
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	st, err := s.status.Stats()
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"ok": false, "error": "internal error"})
		return
	}
	writeOK(w, st)
}
