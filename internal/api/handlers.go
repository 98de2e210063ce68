package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/AdotAyush/cedefi-banking/internal/orchestrator"
)

// Handlers serves the main-system HTTP API.
type Handlers struct {
	Orch *orchestrator.Orchestrator
	Log  *slog.Logger
}

func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handlers) CreateTransaction(w http.ResponseWriter, r *http.Request) {
	var req orchestrator.CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := h.Orch.Create(r.Context(), req)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

func (h *Handlers) ListTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Orch.List(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, txs)
}

func (h *Handlers) GetTransaction(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Orch.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type voteRequest struct {
	Voter    string `json:"voter"`
	Decision bool   `json:"decision"`
}

func (h *Handlers) Vote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.Orch.Vote(r.Context(), mux.Vars(r)["id"], req.Voter, req.Decision)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type bankApprovalRequest struct {
	BankID    string `json:"bankId"`
	Signature string `json:"signature"`
	Approved  bool   `json:"approved"`
}

func (h *Handlers) BankApproval(w http.ResponseWriter, r *http.Request) {
	var req bankApprovalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	tx, err := h.Orch.AddBankApproval(r.Context(), mux.Vars(r)["id"], req.BankID, req.Signature, req.Approved)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

func (h *Handlers) Claim(w http.ResponseWriter, r *http.Request) {
	tx, err := h.Orch.Claim(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tx)
}

type faucetRequest struct {
	Recipient string  `json:"recipient" validate:"required,did"`
	Amount    float64 `json:"amount" validate:"required,gt=0"`
}

func (h *Handlers) Faucet(w http.ResponseWriter, r *http.Request) {
	var req faucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	tx, err := h.Orch.Faucet(r.Context(), req.Recipient, req.Amount)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, tx)
}

type registerNodeRequest struct {
	URL       string `json:"url"`
	Name      string `json:"name"`
	PublicKey string `json:"publicKey"`
}

func (h *Handlers) RegisterNode(w http.ResponseWriter, r *http.Request) {
	var req registerNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.Orch.RegisterNode(r.Context(), req.URL, req.Name, req.PublicKey)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handlers) ListNodes(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.Orch.ListNodes(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, nodes)
}

type verifyNodeRequest struct {
	Action string `json:"action"`
}

func (h *Handlers) VerifyNode(w http.ResponseWriter, r *http.Request) {
	var req verifyNodeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	n, err := h.Orch.VerifyNode(r.Context(), mux.Vars(r)["publicKey"], req.Action)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

func (h *Handlers) BanksHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Orch.BankHealth(r.Context()))
}
