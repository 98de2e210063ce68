package bank

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AdotAyush/cedefi-banking/internal/models"
	"github.com/AdotAyush/cedefi-banking/internal/wallet"
)

// LedgerReader is the slice of MainClient the approval path needs; tests
// substitute it.
type LedgerReader interface {
	GetTransaction(ctx context.Context, id string) (*models.Transaction, error)
}

// Notifier delivers the post-signing callback; tests substitute it.
type Notifier interface {
	NotifyApproval(ctx context.Context, id, bankID, signature string) error
}

// Service evaluates approval requests against the bank's local policy and
// signs the ones that pass.
type Service struct {
	bankID   string
	wallet   *wallet.Wallet
	policy   *Policy
	ledger   LedgerReader
	notifier Notifier
	log      *slog.Logger

	notifyTimeout time.Duration
}

// NewService wires a bank service. notifier may be nil (no callback sent).
func NewService(bankID string, w *wallet.Wallet, policy *Policy, ledger LedgerReader, notifier Notifier, log *slog.Logger) *Service {
	return &Service{
		bankID:        bankID,
		wallet:        w,
		policy:        policy,
		ledger:        ledger,
		notifier:      notifier,
		log:           log,
		notifyTimeout: 10 * time.Second,
	}
}

// ApproveRequest is the payload of POST /bank/approve.
type ApproveRequest struct {
	TransactionID string  `json:"transactionId"`
	Sender        string  `json:"sender"`
	Amount        float64 `json:"amount"`
	Force         bool    `json:"force"`
}

// Decision is the bank's answer to an approval request.
type Decision struct {
	Approved      bool   `json:"approved"`
	BankID        string `json:"bankId"`
	Signature     string `json:"signature,omitempty"`
	SignerAddress string `json:"signerAddress,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// Approve runs the policy checks and signs on success. force skips both the
// amount ceiling and the trusted-vote quorum (manual operator override).
// Vote verification is fail-closed: when the ledger cannot be read the bank
// refuses rather than approving blind.
func (s *Service) Approve(ctx context.Context, req ApproveRequest) (Decision, error) {
	if req.TransactionID == "" {
		return Decision{}, fmt.Errorf("missing transactionId")
	}

	if !req.Force {
		if limit := s.policy.AmountLimit(); req.Amount > limit {
			s.log.Info("refusing transaction, amount above limit",
				"transactionId", req.TransactionID, "amount", req.Amount, "limit", limit)
			return Decision{Approved: false, BankID: s.bankID, Reason: "Amount exceeds limit"}, nil
		}
		if d, ok := s.checkTrustedVotes(ctx, req.TransactionID); !ok {
			return d, nil
		}
	} else {
		s.log.Info("force approval, skipping policy checks", "transactionId", req.TransactionID)
	}

	sig, err := s.wallet.Sign(req.TransactionID)
	if err != nil {
		return Decision{}, fmt.Errorf("sign transaction: %w", err)
	}
	s.log.Info("transaction approved", "transactionId", req.TransactionID, "bankId", s.bankID)

	if s.notifier != nil {
		// Best-effort callback. The orchestrator also merges approvals
		// returned from the broadcast itself, so a lost notification is
		// logged and forgotten, not retried.
		go func(id, signature string) {
			ctx, cancel := context.WithTimeout(context.Background(), s.notifyTimeout)
			defer cancel()
			if err := s.notifier.NotifyApproval(ctx, id, s.bankID, signature); err != nil {
				s.log.Warn("approval callback failed", "transactionId", id, "err", err)
			}
		}(req.TransactionID, sig)
	}

	return Decision{
		Approved:      true,
		BankID:        s.bankID,
		Signature:     sig,
		SignerAddress: s.wallet.Address(),
	}, nil
}

// checkTrustedVotes enforces securityPolicy.minTrustedVotes against the
// transaction's current yes votes from trusted nodes.
func (s *Service) checkTrustedVotes(ctx context.Context, id string) (Decision, bool) {
	min := s.policy.Security().MinTrustedVotes
	if min <= 0 {
		return Decision{}, true
	}

	tx, err := s.ledger.GetTransaction(ctx, id)
	if err != nil {
		s.log.Warn("vote verification unavailable, refusing", "transactionId", id, "err", err)
		return Decision{Approved: false, BankID: s.bankID, Reason: "Vote verification failed"}, false
	}

	valid := 0
	for _, v := range tx.Votes {
		if v.Decision && s.policy.Trusted(v.Voter) {
			valid++
		}
	}
	if valid < min {
		reason := fmt.Sprintf("Insufficient trusted votes (%d/%d)", valid, min)
		s.log.Info("refusing transaction", "transactionId", id, "reason", reason)
		return Decision{Approved: false, BankID: s.bankID, Reason: reason}, false
	}
	return Decision{}, true
}

// Reject records a refusal. No signature is produced and no state changes.
func (s *Service) Reject(transactionID string) Decision {
	s.log.Info("transaction rejected", "transactionId", transactionID, "bankId", s.bankID)
	return Decision{Approved: false, BankID: s.bankID}
}

// Info describes the bank's signing identity.
type Info struct {
	BankID    string `json:"bankId"`
	Address   string `json:"address"`
	PublicKey string `json:"publicKey"`
}

// Info returns the bank's identity.
func (s *Service) Info() Info {
	return Info{
		BankID:    s.bankID,
		Address:   s.wallet.Address(),
		PublicKey: s.wallet.PublicKeyPEM(),
	}
}
