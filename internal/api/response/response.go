// Package response writes the JSON envelope shared by every endpoint:
// {"data": ...} on success, {"data": [...], "meta": {...}} for lists and
// {"error": {"code", "message", "details"}} on failure.
package response

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

type body struct {
	Data  any       `json:"data,omitempty"`
	Meta  *ListMeta `json:"meta,omitempty"`
	Error *Problem  `json:"error,omitempty"`
}

// Problem is the error half of the envelope.
type Problem struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ListMeta describes an unpaged list.
type ListMeta struct {
	Total int `json:"total"`
}

func JSON(w http.ResponseWriter, data any) {
	write(w, http.StatusOK, body{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	write(w, http.StatusCreated, body{Data: data})
}

func Accepted(w http.ResponseWriter, data any) {
	write(w, http.StatusAccepted, body{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// List writes items with their count. items must be a non-nil slice so the
// payload is [] rather than omitted.
func List(w http.ResponseWriter, items any, total int) {
	write(w, http.StatusOK, body{Data: items, Meta: &ListMeta{Total: total}})
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	write(w, status, body{Error: &Problem{Code: code, Message: message, Details: details}})
}

// InvalidFields is the 400 written for request validation failures.
func InvalidFields(w http.ResponseWriter, message string, fields []string) {
	Error(w, http.StatusBadRequest, "INVALID_REQUEST", message, map[string]any{"fields": fields})
}

func write(w http.ResponseWriter, status int, b body) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(b); err != nil {
		slog.Warn("writing response body", "status", status, "error", err)
	}
}
