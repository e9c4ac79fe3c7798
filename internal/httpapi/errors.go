package httpapi

import (
	"encoding/json"
	"net/http"

	"presetd/internal/manager"
	"presetd/internal/store"
	"presetd/pkg/types"
)

// statusForError maps well-known domain errors to HTTP status codes.
func statusForError(err error) int {
	switch {
	case manager.IsModelNotFound(err), store.IsPresetNotFound(err):
		return http.StatusNotFound
	case manager.IsUnavailable(err):
		return http.StatusServiceUnavailable
	case manager.IsPresetActive(err), store.IsPresetExists(err):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusForError(err), err.Error())
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		writeJSONError(w, http.StatusInternalServerError, "failed to encode response")
	}
}
