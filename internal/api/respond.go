package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/AdotAyush/cedefi-banking/internal/orchestrator"
	"github.com/AdotAyush/cedefi-banking/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps the orchestrator error taxonomy onto HTTP statuses:
// validation 400, not-found 404, conflict 409.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrExists),
		errors.Is(err, orchestrator.ErrDuplicateVote),
		errors.Is(err, orchestrator.ErrAlreadyClaimed):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, orchestrator.ErrInvalidDID),
		errors.Is(err, orchestrator.ErrInvalidAmount),
		errors.Is(err, orchestrator.ErrMissingField),
		errors.Is(err, orchestrator.ErrNotApproved):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}
