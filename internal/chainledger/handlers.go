package chainledger

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
)

// Handlers serves the chain HTTP API consumed by the main system.
type Handlers struct {
	Ledger *Ledger
	Log    *slog.Logger
}

type createRequest struct {
	TransactionID string  `json:"transactionId"`
	Sender        string  `json:"sender"`
	Amount        float64 `json:"amount"`
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.TransactionID == "" {
		writeError(w, http.StatusBadRequest, "missing transactionId")
		return
	}
	rec, err := h.Ledger.Create(req.TransactionID, req.Sender, req.Amount)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.Log.Info("chain record created", "transactionId", rec.TransactionID)
	writeJSON(w, http.StatusCreated, rec)
}

type finalizeRequest struct {
	Approved bool `json:"approved"`
}

func (h *Handlers) FinalizeTransaction(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	rec, err := h.Ledger.Finalize(mux.Vars(r)["id"], req.Approved)
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	h.Log.Info("chain record finalized", "transactionId", rec.TransactionID, "approved", rec.Approved)
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	rec, err := h.Ledger.Get(mux.Vars(r)["id"])
	if err != nil {
		writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.Ledger.List())
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// NewRouter wires the chain routes.
func (h *Handlers) NewRouter() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/chain/transactions", h.CreateTransaction).Methods("POST")
	r.HandleFunc("/chain/transactions", h.ListTransactions).Methods("GET")
	r.HandleFunc("/chain/transactions/{id}", h.GetTransaction).Methods("GET")
	r.HandleFunc("/chain/transactions/{id}/finalize", h.FinalizeTransaction).Methods("POST")
	r.HandleFunc("/health", h.Health).Methods("GET")
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

func writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, ErrExists):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, ErrAlreadyFinalized):
		// The client treats this body as idempotent success.
		writeError(w, http.StatusBadRequest, "Transaction already finalized")
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
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
