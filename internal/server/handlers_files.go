package server

import (
	"fmt"
	"io"
	"net/http"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/gorilla/mux"
)

const maxUploadMemory = 64 << 20 // multipart parse buffer; large bodies still size-checked after read

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	uploader, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		apierr.Write(w, apierr.Validation("could not parse multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.Write(w, apierr.Validation("file field is required"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		apierr.Write(w, apierr.Internal("could not read uploaded file"))
		return
	}

	conversationID := r.FormValue("conversation_id")
	description := r.FormValue("description")
	f, err := s.files.Upload(body, header.Filename, header.Header.Get("Content-Type"), uploader, conversationID, description)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, f)
}

func (s *Server) handleFileInfo(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f, err := s.files.Info(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, f)
}

func (s *Server) handleFileDownload(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rc, meta, err := s.files.Open(id)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	defer rc.Close()
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", meta.OriginalName))
	if meta.MimeType != "" {
		w.Header().Set("Content-Type", meta.MimeType)
	}
	io.Copy(w, rc)
}

func (s *Server) handleFileList(w http.ResponseWriter, r *http.Request) {
	uploader := r.URL.Query().Get("uploaded_by")
	conversationID := r.URL.Query().Get("conversation_id")
	list, err := s.files.List(uploader, conversationID)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"files": list})
}

func (s *Server) handleFileDelete(w http.ResponseWriter, r *http.Request) {
	caller, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.files.Delete(id, caller); err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"ok": true})
}

func (s *Server) handleFileStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.files.Stats()
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, stats)
}

func (s *Server) handleSendFile(w http.ResponseWriter, r *http.Request) {
	from, err := s.requireAgent(r)
	if err != nil {
		apierr.Write(w, err)
		return
	}
	if err := r.ParseMultipartForm(maxUploadMemory); err != nil {
		apierr.Write(w, apierr.Validation("could not parse multipart form"))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		apierr.Write(w, apierr.Validation("file field is required"))
		return
	}
	defer file.Close()

	body, err := io.ReadAll(file)
	if err != nil {
		apierr.Write(w, apierr.Internal("could not read uploaded file"))
		return
	}

	to := r.FormValue("to")
	description := r.FormValue("description")
	f, msg, err := s.files.SendFile(body, header.Filename, header.Header.Get("Content-Type"), from, to, description, "/files")
	if err != nil {
		apierr.Write(w, err)
		return
	}
	writeOK(w, map[string]interface{}{"file": f, "message": msg})
}
