package ui

import (
	"encoding/json"
	"net/http"
)

// Error codes returned in API error bodies.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotReady    = "not_ready"
	ErrCodeUnavailable = "unavailable"
	ErrCodeInternal    = "internal"
)

// Error is the JSON body of every API error.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		json.NewEncoder(w).Encode(v) //nolint:errcheck // connection may be gone
	}
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}
