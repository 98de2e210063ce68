package bank

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// TransactionLister is the polling surface of MainClient.
type TransactionLister interface {
	ListTransactions(ctx context.Context) ([]*models.Transaction, error)
	Vote(ctx context.Context, id, voter string, decision bool) error
}

// Validator is the bank's autonomous node: it polls the ledger, applies a
// fixed local rule to PENDING transactions it has not voted on, and casts a
// vote. It is deliberately independent of the bank's signing policy; the bank
// can refuse to sign a transaction its validator voted yes on, and vice
// versa.
type Validator struct {
	voterDID       string
	ledger         TransactionLister
	interval       time.Duration
	balanceCeiling float64
	log            *slog.Logger

	cancel context.CancelFunc
	done   chan struct{}
}

// NewValidator builds the validator for a bank. address is the bank wallet's
// address; the voter identity is derived from it.
func NewValidator(address string, ledger TransactionLister, interval time.Duration, balanceCeiling float64, log *slog.Logger) *Validator {
	return &Validator{
		voterDID:       "did:cedefi:bank:" + strings.ToLower(address),
		ledger:         ledger,
		interval:       interval,
		balanceCeiling: balanceCeiling,
		log:            log,
	}
}

// VoterDID returns the identity the validator votes under.
func (v *Validator) VoterDID() string { return v.voterDID }

// Start launches the polling loop.
func (v *Validator) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	v.cancel = cancel
	v.done = make(chan struct{})
	go v.run(ctx)
	v.log.Info("validator started", "voter", v.voterDID, "interval", v.interval)
}

// Stop terminates the polling loop and waits for it to exit.
func (v *Validator) Stop() {
	if v.cancel == nil {
		return
	}
	v.cancel()
	<-v.done
}

func (v *Validator) run(ctx context.Context) {
	defer close(v.done)
	ticker := time.NewTicker(v.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			v.Poll(ctx)
		}
	}
}

// Poll runs one polling round: fetch transactions, vote on the PENDING ones
// this validator has not seen. Errors are swallowed; the next tick retries.
func (v *Validator) Poll(ctx context.Context) {
	txs, err := v.ledger.ListTransactions(ctx)
	if err != nil {
		// Polling errors are routine while the main system restarts.
		v.log.Debug("poll failed", "err", err)
		return
	}
	for _, tx := range txs {
		if tx.Status != models.StatusPending || tx.HasVoted(v.voterDID) {
			continue
		}
		decision, reason := v.evaluate(tx)
		v.log.Info("validator decision", "transactionId", tx.TransactionID, "decision", decision, "reason", reason)
		if err := v.ledger.Vote(ctx, tx.TransactionID, v.voterDID, decision); err != nil {
			v.log.Warn("validator vote failed", "transactionId", tx.TransactionID, "err", err)
		}
	}
}

// evaluate applies the fixed local rule: reject when the sender signature is
// missing or the amount exceeds the mock balance ceiling.
func (v *Validator) evaluate(tx *models.Transaction) (bool, string) {
	if tx.Signature == "" {
		return false, "missing signature"
	}
	if tx.Amount > v.balanceCeiling {
		return false, fmt.Sprintf("amount above balance ceiling (%.0f)", v.balanceCeiling)
	}
	return true, ""
}
