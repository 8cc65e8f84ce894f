// Package files implements the content-addressed blob store of spec.md
// §4.4: upload, download, metadata, deletion, usage stats, and the combined
// upload+send "send-file" flow.
package files

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"syscall"

	"github.com/agent-bridge/bridge/internal/apierr"
	"github.com/agent-bridge/bridge/internal/messaging"
	"github.com/agent-bridge/bridge/internal/store"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
)

const maxUploadSize = 50 * 1024 * 1024 // spec.md §4.4, overridable via config.MaxFileSize

// File is a stored blob's metadata row.
type File struct {
	ID             string  `json:"id"`
	OriginalName   string  `json:"original_name"`
	MimeType       string  `json:"mime_type,omitempty"`
	Size           int64   `json:"size"`
	SHA256         string  `json:"sha256"`
	UploadedBy     string  `json:"uploaded_by"`
	UploadedAt     float64 `json:"uploaded_at"`
	ConversationID string  `json:"conversation_id,omitempty"`
	MessageID      string  `json:"message_id,omitempty"`
	Description    string  `json:"description,omitempty"`
}

// UploaderStat is a per-agent row of the /files/stats breakdown.
type UploaderStat struct {
	Agent string `json:"agent"`
	Count int    `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Stats is the shape returned by GET /files/stats.
type Stats struct {
	TotalFiles    int            `json:"total_files"`
	TotalSize     int64          `json:"total_size"`
	TotalSizeHuman string        `json:"total_size_human"`
	LargestFile   *File          `json:"largest_file,omitempty"`
	ByUploader    []UploaderStat `json:"by_uploader"`
	DiskTotal     uint64         `json:"disk_total"`
	DiskFree      uint64         `json:"disk_free"`
}

// Store provides file operations over the shared relational backend and a
// files directory on disk.
type Store struct {
	db       *store.Store
	dir      string
	maxSize  int64
	messages *messaging.Store
}

func New(db *store.Store, dir string, maxSize int64, messages *messaging.Store) *Store {
	if maxSize <= 0 {
		maxSize = maxUploadSize
	}
	return &Store{db: db, dir: dir, maxSize: maxSize, messages: messages}
}

// Upload writes body to disk and records its metadata. If conversationID is
// non-empty, uploader membership is verified before any write. The full
// body must already be read into memory by the caller (spec.md §5: never
// hold a transaction across a network read).
func (s *Store) Upload(body []byte, originalName, mimeType, uploader, conversationID, description string) (*File, error) {
	if len(body) == 0 {
		return nil, apierr.Validation("uploaded file is empty")
	}
	if int64(len(body)) > s.maxSize {
		return nil, apierr.Capacity(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxSize))
	}
	if conversationID != "" {
		var dummy int
		err := s.db.DB.QueryRow(
			"SELECT 1 FROM conversation_members WHERE conversation_id = ? AND agent_id = ?", conversationID, uploader).Scan(&dummy)
		if err == sql.ErrNoRows {
			return nil, apierr.Forbidden("not a member of this conversation")
		}
		if err != nil {
			return nil, fmt.Errorf("check membership: %w", err)
		}
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	id := uuid.New().String()
	ext := filepath.Ext(originalName)
	storedName := id + ext

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, apierr.Internal("could not prepare storage directory")
	}
	path := filepath.Join(s.dir, storedName)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, mapWriteError(err)
	}

	f := &File{
		ID:             id,
		OriginalName:   originalName,
		MimeType:       mimeType,
		Size:           int64(len(body)),
		SHA256:         hash,
		UploadedBy:     uploader,
		UploadedAt:     store.Now(),
		ConversationID: conversationID,
		Description:    description,
	}
	_, err := s.db.DB.Exec(`
		INSERT INTO files (id, stored_filename, original_name, mime_type, size, sha256, uploaded_by, uploaded_at, conversation_id, description)
		VALUES (?,?,?,?,?,?,?,?,?,?)`,
		f.ID, storedName, f.OriginalName, f.MimeType, f.Size, f.SHA256, f.UploadedBy, f.UploadedAt, nullable(f.ConversationID), f.Description)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("insert file row: %w", err)
	}
	return f, nil
}

// mapWriteError maps disk-write errno to the status taxonomy of spec.md
// §4.4: ENOSPC → 507, EACCES → 500, everything else → 500.
func mapWriteError(err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return apierr.NoSpace("no space left on device")
	}
	return apierr.Internal("could not write uploaded file")
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func (s *Store) storedFilename(id string) (string, error) {
	var name string
	err := s.db.DB.QueryRow("SELECT stored_filename FROM files WHERE id = ?", id).Scan(&name)
	if err == sql.ErrNoRows {
		return "", apierr.NotFound("file not found")
	}
	if err != nil {
		return "", fmt.Errorf("lookup stored filename: %w", err)
	}
	return name, nil
}

// Open returns a reader for the blob's bytes on disk, for streaming by the
// HTTP handler. Caller must Close it.
func (s *Store) Open(id string) (io.ReadCloser, *File, error) {
	meta, err := s.Info(id)
	if err != nil {
		return nil, nil, err
	}
	name, err := s.storedFilename(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(s.dir, name))
	if err != nil {
		return nil, nil, apierr.NotFound("file blob missing from disk")
	}
	return f, meta, nil
}

// Info returns a file's metadata. Public — no auth required.
func (s *Store) Info(id string) (*File, error) {
	f := &File{}
	var convID, msgID, mime sql.NullString
	err := s.db.DB.QueryRow(`
		SELECT id, original_name, mime_type, size, sha256, uploaded_by, uploaded_at, conversation_id, message_id, description
		FROM files WHERE id = ?`, id).Scan(
		&f.ID, &f.OriginalName, &mime, &f.Size, &f.SHA256, &f.UploadedBy, &f.UploadedAt, &convID, &msgID, &f.Description)
	if err == sql.ErrNoRows {
		return nil, apierr.NotFound("file not found")
	}
	if err != nil {
		return nil, fmt.Errorf("file info: %w", err)
	}
	f.MimeType = mime.String
	f.ConversationID = convID.String
	f.MessageID = msgID.String
	return f, nil
}

// List returns files, optionally filtered by uploader or conversation.
func (s *Store) List(uploader, conversationID string) ([]*File, error) {
	query := `SELECT id, original_name, mime_type, size, sha256, uploaded_by, uploaded_at, conversation_id, message_id, description FROM files WHERE 1=1`
	var args []interface{}
	if uploader != "" {
		query += " AND uploaded_by = ?"
		args = append(args, uploader)
	}
	if conversationID != "" {
		query += " AND conversation_id = ?"
		args = append(args, conversationID)
	}
	query += " ORDER BY uploaded_at DESC"

	rows, err := s.db.DB.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	defer rows.Close()

	var out []*File
	for rows.Next() {
		f := &File{}
		var convID, msgID, mime sql.NullString
		if err := rows.Scan(&f.ID, &f.OriginalName, &mime, &f.Size, &f.SHA256, &f.UploadedBy, &f.UploadedAt, &convID, &msgID, &f.Description); err != nil {
			return nil, err
		}
		f.MimeType = mime.String
		f.ConversationID = convID.String
		f.MessageID = msgID.String
		out = append(out, f)
	}
	return out, rows.Err()
}

// Delete removes a file. Only the uploader may delete. The on-disk blob is
// removed best-effort; a missing blob is not an error.
func (s *Store) Delete(id, caller string) error {
	var uploader, name string
	err := s.db.DB.QueryRow("SELECT uploaded_by, stored_filename FROM files WHERE id = ?", id).Scan(&uploader, &name)
	if err == sql.ErrNoRows {
		return apierr.NotFound("file not found")
	}
	if err != nil {
		return fmt.Errorf("lookup file: %w", err)
	}
	if uploader != caller {
		return apierr.Forbidden("only the uploader may delete this file")
	}
	os.Remove(filepath.Join(s.dir, name))
	if _, err := s.db.DB.Exec("DELETE FROM files WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete file row: %w", err)
	}
	return nil
}

// Stats computes the usage summary of GET /files/stats.
func (s *Store) Stats() (*Stats, error) {
	st := &Stats{}
	err := s.db.DB.QueryRow("SELECT COUNT(*), COALESCE(SUM(size),0) FROM files").Scan(&st.TotalFiles, &st.TotalSize)
	if err != nil {
		return nil, fmt.Errorf("aggregate file stats: %w", err)
	}
	st.TotalSizeHuman = humanize.Bytes(uint64(st.TotalSize))

	var largest File
	var convID, msgID, mime sql.NullString
	err = s.db.DB.QueryRow(`
		SELECT id, original_name, mime_type, size, sha256, uploaded_by, uploaded_at, conversation_id, message_id, description
		FROM files ORDER BY size DESC LIMIT 1`).Scan(
		&largest.ID, &largest.OriginalName, &mime, &largest.Size, &largest.SHA256, &largest.UploadedBy, &largest.UploadedAt, &convID, &msgID, &largest.Description)
	if err == nil {
		largest.MimeType = mime.String
		largest.ConversationID = convID.String
		largest.MessageID = msgID.String
		st.LargestFile = &largest
	} else if err != sql.ErrNoRows {
		return nil, fmt.Errorf("largest file: %w", err)
	}

	rows, err := s.db.DB.Query("SELECT uploaded_by, COUNT(*), COALESCE(SUM(size),0) FROM files GROUP BY uploaded_by ORDER BY uploaded_by")
	if err != nil {
		return nil, fmt.Errorf("per-uploader stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var u UploaderStat
		if err := rows.Scan(&u.Agent, &u.Count, &u.Bytes); err != nil {
			return nil, err
		}
		st.ByUploader = append(st.ByUploader, u)
	}
	sort.Slice(st.ByUploader, func(i, j int) bool { return st.ByUploader[i].Agent < st.ByUploader[j].Agent })

	var sfs syscall.Statfs_t
	if err := syscall.Statfs(s.dir, &sfs); err == nil {
		st.DiskTotal = sfs.Blocks * uint64(sfs.Bsize)
		st.DiskFree = sfs.Bavail * uint64(sfs.Bsize)
	}
	return st, nil
}

// SendFile combines upload + DM send + file-to-message back-link in one
// transaction. The message body is decorated with the filename, size, and
// download URL (spec.md §4.4).
func (s *Store) SendFile(body []byte, originalName, mimeType, from, to, description, downloadURLPrefix string) (*File, *messaging.Message, error) {
	if to == "" {
		return nil, nil, apierr.Validation("to is required")
	}
	if len(body) == 0 {
		return nil, nil, apierr.Validation("uploaded file is empty")
	}
	if int64(len(body)) > s.maxSize {
		return nil, nil, apierr.Capacity(fmt.Sprintf("file exceeds maximum size of %d bytes", s.maxSize))
	}

	sum := sha256.Sum256(body)
	hash := hex.EncodeToString(sum[:])
	id := uuid.New().String()
	ext := filepath.Ext(originalName)
	storedName := id + ext

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return nil, nil, apierr.Internal("could not prepare storage directory")
	}
	path := filepath.Join(s.dir, storedName)
	if err := os.WriteFile(path, body, 0644); err != nil {
		return nil, nil, mapWriteError(err)
	}

	f := &File{
		ID:           id,
		OriginalName: originalName,
		MimeType:     mimeType,
		Size:         int64(len(body)),
		SHA256:       hash,
		UploadedBy:   from,
		UploadedAt:   store.Now(),
		Description:  description,
	}

	var msg *messaging.Message
	err := s.db.WithTx(func(tx *sql.Tx) error {
		text := fmt.Sprintf("📎 Sent a file: %s (%s) 🔗 %s/%s/%s",
			originalName, humanize.Bytes(uint64(f.Size)), downloadURLPrefix, id, originalName)
		m, err := messaging.InsertMessageTx(tx, from, to, text)
		if err != nil {
			return err
		}
		msg = m
		f.ConversationID = msg.ConversationID
		f.MessageID = msg.ID

		_, err = tx.Exec(`
			INSERT INTO files (id, stored_filename, original_name, mime_type, size, sha256, uploaded_by, uploaded_at, conversation_id, message_id, description)
			VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
			f.ID, storedName, f.OriginalName, f.MimeType, f.Size, f.SHA256, f.UploadedBy, f.UploadedAt, f.ConversationID, f.MessageID, f.Description)
		return err
	})
	if err != nil {
		os.Remove(path)
		return nil, nil, fmt.Errorf("send file: %w", err)
	}
	return f, msg, nil
}
