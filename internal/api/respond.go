// ABOUTME: JSON response helpers and store-error to HTTP-status mapping
// ABOUTME: A losing claim reads as "already claimed", not a generic failure

package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/deskhive/deskrouter/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps the error taxonomy onto HTTP statuses. Callers that
// lose a claim race should re-fetch the conversation's agents to show the
// actual owner.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	case errors.Is(err, store.ErrConflict):
		writeError(w, http.StatusConflict, "conversation already claimed by someone else")
	case errors.Is(err, store.ErrUnavailable):
		writeError(w, http.StatusServiceUnavailable, "store busy, retry with backoff")
	default:
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}
