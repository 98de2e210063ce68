// Package orchestrator glues the consensus pieces together: it owns the
// transaction lifecycle, fans approval requests out to the banks, merges
// votes and signatures, and commits terminal outcomes to the immutable
// ledger exactly once.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AdotAyush/cedefi-banking/internal/broadcast"
	"github.com/AdotAyush/cedefi-banking/internal/events"
	"github.com/AdotAyush/cedefi-banking/internal/metrics"
	"github.com/AdotAyush/cedefi-banking/internal/models"
	"github.com/AdotAyush/cedefi-banking/internal/store"
)

var (
	ErrInvalidDID     = errors.New("malformed DID")
	ErrInvalidAmount  = errors.New("amount must be positive")
	ErrMissingField   = errors.New("missing required field")
	ErrDuplicateVote  = errors.New("already voted")
	ErrNotApproved    = errors.New("transaction is not approved")
	ErrAlreadyClaimed = errors.New("funds already claimed")
)

// FaucetSender is the system identity used for faucet-issued funds.
const FaucetSender = "did:cedefi:system:faucet"

// ChainWriter records a terminal outcome on the immutable ledger. The write
// must be idempotent; chain.Client satisfies this.
type ChainWriter interface {
	RecordOutcome(ctx context.Context, id, sender string, amount float64, approved bool) error
}

// Broadcaster is the bank fan-out, satisfied by broadcast.Coordinator.
type Broadcaster interface {
	Broadcast(ctx context.Context, req broadcast.ApprovalRequest) []broadcast.ApprovalResponse
}

// Orchestrator drives transaction state. All mutations of one transaction are
// serialized behind a per-id lock.
type Orchestrator struct {
	txs     store.TransactionStore
	nodes   store.NodeStore
	banks   Broadcaster
	chain   ChainWriter
	pub     *events.Publisher
	met     *metrics.Metrics
	log     *slog.Logger
	locks   *keyedMutex
	nowFunc func() time.Time
}

// New wires an orchestrator. pub may be nil (event publishing disabled).
func New(txs store.TransactionStore, nodes store.NodeStore, banks Broadcaster, chain ChainWriter, pub *events.Publisher, met *metrics.Metrics, log *slog.Logger) *Orchestrator {
	return &Orchestrator{
		txs:     txs,
		nodes:   nodes,
		banks:   banks,
		chain:   chain,
		pub:     pub,
		met:     met,
		log:     log,
		locks:   newKeyedMutex(),
		nowFunc: time.Now,
	}
}

// CreateRequest is the client payload for a new transaction.
type CreateRequest struct {
	TransactionID string  `json:"transactionId" validate:"required"`
	Sender        string  `json:"sender" validate:"required,did"`
	Recipient     string  `json:"recipient" validate:"required,did"`
	Amount        float64 `json:"amount" validate:"required,gt=0"`
	Signature     string  `json:"signature"`
}

// Create validates and stores a new PENDING transaction, then triggers the
// bank broadcast in the background. Creation does not wait for any bank.
func (o *Orchestrator) Create(ctx context.Context, req CreateRequest) (*models.Transaction, error) {
	if req.TransactionID == "" {
		return nil, fmt.Errorf("%w: transactionId", ErrMissingField)
	}
	if !models.ValidDID(req.Sender) || !models.ValidDID(req.Recipient) {
		return nil, ErrInvalidDID
	}
	if req.Amount <= 0 {
		return nil, ErrInvalidAmount
	}

	tx := &models.Transaction{
		TransactionID:   req.TransactionID,
		Sender:          req.Sender,
		Recipient:       req.Recipient,
		Amount:          req.Amount,
		Signature:       req.Signature,
		Status:          models.StatusPending,
		RecipientStatus: models.RecipientPending,
		Votes:           []models.Vote{},
		BankApprovals:   []models.BankApproval{},
		CreatedAt:       o.nowFunc().UTC(),
	}
	if err := o.txs.Insert(ctx, tx); err != nil {
		return nil, err
	}
	o.met.TxCreated.Inc()
	o.log.Info("transaction created", "transactionId", tx.TransactionID, "amount", tx.Amount)

	// Fire and forget: broadcast retries run on their own schedule even
	// after this request has returned to the caller.
	go o.broadcastAndMerge(context.Background(), tx.TransactionID, tx.Sender, tx.Amount)

	return tx, nil
}

func (o *Orchestrator) broadcastAndMerge(ctx context.Context, id, sender string, amount float64) {
	start := o.nowFunc()
	approvals := o.banks.Broadcast(ctx, broadcast.ApprovalRequest{
		TransactionID: id,
		Sender:        sender,
		Amount:        amount,
	})
	o.met.BroadcastDuration.Observe(time.Since(start).Seconds())
	o.met.BroadcastApprovals.Observe(float64(len(approvals)))

	if len(approvals) == 0 {
		return
	}
	for _, a := range approvals {
		if err := o.mergeApproval(ctx, id, a.BankID, a.Signature); err != nil {
			o.log.Warn("merge broadcast approval", "transactionId", id, "bankId", a.BankID, "err", err)
		}
	}
}

// Vote records one node's decision and re-evaluates consensus. A second vote
// from the same voter is a conflict and leaves state untouched. Votes landing
// on a terminal transaction are still recorded for the audit trail; the
// status cannot change.
func (o *Orchestrator) Vote(ctx context.Context, id, voter string, decision bool) (*models.Transaction, error) {
	if voter == "" {
		return nil, fmt.Errorf("%w: voter", ErrMissingField)
	}
	unlock := o.locks.Lock(id)
	defer unlock()

	tx, err := o.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.HasVoted(voter) {
		return nil, ErrDuplicateVote
	}
	tx.Votes = append(tx.Votes, models.Vote{
		Voter:     voter,
		Decision:  decision,
		Timestamp: o.nowFunc().UTC(),
	})
	if err := o.txs.Update(ctx, tx); err != nil {
		return nil, err
	}
	if decision {
		o.met.VotesTotal.WithLabelValues("yes").Inc()
	} else {
		o.met.VotesTotal.WithLabelValues("no").Inc()
	}
	o.log.Info("vote recorded", "transactionId", id, "voter", voter, "decision", decision)

	return o.commitLocked(ctx, tx)
}

// AddBankApproval merges a bank's signed approval (callback path) and
// re-evaluates consensus. Duplicate bankIds are dropped silently; a callback
// with approved=false records nothing.
func (o *Orchestrator) AddBankApproval(ctx context.Context, id, bankID, signature string, approved bool) (*models.Transaction, error) {
	if bankID == "" {
		return nil, fmt.Errorf("%w: bankId", ErrMissingField)
	}
	if !approved {
		// A refusal carries no signature and no state change.
		return o.txs.Get(ctx, id)
	}
	if err := o.mergeApproval(ctx, id, bankID, signature); err != nil {
		return nil, err
	}
	return o.txs.Get(ctx, id)
}

func (o *Orchestrator) mergeApproval(ctx context.Context, id, bankID, signature string) error {
	unlock := o.locks.Lock(id)
	defer unlock()

	tx, err := o.txs.Get(ctx, id)
	if err != nil {
		return err
	}
	if tx.HasBankApproval(bankID) {
		o.log.Info("duplicate bank approval ignored", "transactionId", id, "bankId", bankID)
		return nil
	}
	tx.BankApprovals = append(tx.BankApprovals, models.BankApproval{
		BankID:    bankID,
		Signature: signature,
		Timestamp: o.nowFunc().UTC(),
	})
	if err := o.txs.Update(ctx, tx); err != nil {
		return err
	}
	o.met.BankApprovals.Inc()
	o.log.Info("bank approval merged", "transactionId", id, "bankId", bankID)

	_, err = o.commitLocked(ctx, tx)
	return err
}

// Claim transitions recipientStatus from PENDING to CLAIMED. Funds can only
// be claimed once, and only from an APPROVED transaction.
func (o *Orchestrator) Claim(ctx context.Context, id string) (*models.Transaction, error) {
	unlock := o.locks.Lock(id)
	defer unlock()

	tx, err := o.txs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if tx.Status != models.StatusApproved {
		return nil, ErrNotApproved
	}
	if tx.RecipientStatus == models.RecipientClaimed {
		return nil, ErrAlreadyClaimed
	}
	tx.RecipientStatus = models.RecipientClaimed
	if err := o.txs.Update(ctx, tx); err != nil {
		return nil, err
	}
	o.log.Info("funds claimed", "transactionId", id, "recipient", tx.Recipient)
	return tx, nil
}

// Faucet issues system funds: the transaction is born APPROVED with no votes
// or bank approvals and is written straight through to the chain.
func (o *Orchestrator) Faucet(ctx context.Context, recipient string, amount float64) (*models.Transaction, error) {
	if !models.ValidDID(recipient) {
		return nil, ErrInvalidDID
	}
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	tx := &models.Transaction{
		TransactionID:   "faucet-" + uuid.NewString(),
		Sender:          FaucetSender,
		Recipient:       recipient,
		Amount:          amount,
		Status:          models.StatusApproved,
		RecipientStatus: models.RecipientPending,
		Votes:           []models.Vote{},
		BankApprovals:   []models.BankApproval{},
		CreatedAt:       o.nowFunc().UTC(),
	}
	if err := o.txs.Insert(ctx, tx); err != nil {
		return nil, err
	}
	o.met.TxCreated.Inc()
	o.met.StatusTransitions.WithLabelValues(string(models.StatusApproved)).Inc()
	o.finalize(ctx, tx)
	o.log.Info("faucet transaction issued", "transactionId", tx.TransactionID, "recipient", recipient, "amount", amount)
	return tx, nil
}

// Get fetches one transaction.
func (o *Orchestrator) Get(ctx context.Context, id string) (*models.Transaction, error) {
	return o.txs.Get(ctx, id)
}

// List returns all transactions, newest first.
func (o *Orchestrator) List(ctx context.Context) ([]*models.Transaction, error) {
	return o.txs.List(ctx)
}

// BankHealth reports the liveness of the configured banks, when the wired
// broadcaster supports probing.
func (o *Orchestrator) BankHealth(ctx context.Context) []broadcast.BankHealth {
	if c, ok := o.banks.(*broadcast.Coordinator); ok {
		return c.CheckHealth(ctx)
	}
	return nil
}
