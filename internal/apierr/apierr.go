// Package apierr implements the error taxonomy of the server: each error
// kind maps to one HTTP status code, and handlers respond with a uniform
// JSON envelope regardless of which component raised it.
package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Kind identifies a taxonomy bucket from the error-handling design.
type Kind int

const (
	KindInternal Kind = iota
	KindAuth
	KindForbidden
	KindNotFound
	KindValidation
	KindConflict
	KindCapacity
	KindInsufficientStorage
)

// Error is a taxonomy-tagged error carrying a user-facing message.
type Error struct {
	Kind    Kind
	Message string
}

func (e *Error) Error() string { return e.Message }

func new_(kind Kind, msg string) *Error { return &Error{Kind: kind, Message: msg} }

func Auth(msg string) *Error       { return new_(KindAuth, msg) }
func Forbidden(msg string) *Error  { return new_(KindForbidden, msg) }
func NotFound(msg string) *Error   { return new_(KindNotFound, msg) }
func Validation(msg string) *Error { return new_(KindValidation, msg) }
func Conflict(msg string) *Error   { return new_(KindConflict, msg) }
func Capacity(msg string) *Error   { return new_(KindCapacity, msg) }
func NoSpace(msg string) *Error    { return new_(KindInsufficientStorage, msg) }
func Internal(msg string) *Error   { return new_(KindInternal, msg) }

func (k Kind) status() int {
	switch k {
	case KindAuth:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindCapacity:
		return http.StatusRequestEntityTooLarge
	case KindInsufficientStorage:
		return http.StatusInsufficientStorage
	default:
		return http.StatusInternalServerError
	}
}

// Write renders err as the JSON error envelope with the matching status
// code. Unrecognized errors are reported as 500 with a generic message —
// the server keeps running (§7's InternalError policy).
func Write(w http.ResponseWriter, err error) {
	var apiErr *Error
	status := http.StatusInternalServerError
	msg := "internal error"
	if errors.As(err, &apiErr) {
		status = apiErr.Kind.status()
		msg = apiErr.Message
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"ok":    false,
		"error": msg,
	})
}
