package bank

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Handlers serves the bank HTTP API.
type Handlers struct {
	Svc *Service
}

func (h *Handlers) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "missing transactionId")
		return
	}
	d, err := h.Svc.Approve(r.Context(), req)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "signing failed")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handlers) Reject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransactionID string `json:"transactionId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, h.Svc.Reject(req.TransactionID))
}

func (h *Handlers) GetSettings(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Svc.policy.Snapshot())
}

func (h *Handlers) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var s Settings
	if err := json.NewDecoder(r.Body).Decode(&s); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	h.Svc.policy.Update(s)
	writeJSON(w, http.StatusOK, h.Svc.policy.Snapshot())
}

func (h *Handlers) Info(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Svc.Info())
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// NewRouter wires the bank routes.
func (h *Handlers) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/bank/approve", h.Approve).Methods("POST")
	r.HandleFunc("/bank/reject", h.Reject).Methods("POST")
	r.HandleFunc("/bank/settings", h.GetSettings).Methods("GET")
	r.HandleFunc("/bank/settings", h.UpdateSettings).Methods("POST")
	r.HandleFunc("/bank/info", h.Info).Methods("GET")
	r.HandleFunc("/bank/health", h.Health).Methods("GET")
	return r
}

// NewServer wraps the router with request logging and applies server timeouts.
func NewServer(addr string, router *mux.Router) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handlers.LoggingHandler(os.Stdout, router),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
