package orchestrator

import (
	"context"

	"github.com/AdotAyush/cedefi-banking/internal/consensus"
	"github.com/AdotAyush/cedefi-banking/internal/events"
	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// commitLocked re-evaluates consensus for tx and persists the new status if
// it changed, finalizing terminal outcomes on the chain. The caller must hold
// the per-id lock and pass the freshest copy of the transaction.
func (o *Orchestrator) commitLocked(ctx context.Context, tx *models.Transaction) (*models.Transaction, error) {
	totalActive, err := o.nodes.CountActive(ctx)
	if err != nil {
		// No denominator means no decision; the next trigger re-evaluates.
		o.log.Warn("active node count unavailable, skipping consensus", "transactionId", tx.TransactionID, "err", err)
		return tx, nil
	}

	yes, no := tx.Tally()
	next := consensus.Evaluate(totalActive, yes, no, len(tx.BankApprovals), tx.Status)
	if next == tx.Status {
		return tx, nil
	}

	tx.Status = next
	if err := o.txs.Update(ctx, tx); err != nil {
		return nil, err
	}
	o.met.StatusTransitions.WithLabelValues(string(next)).Inc()
	o.log.Info("status transition",
		"transactionId", tx.TransactionID,
		"status", next,
		"activeNodes", totalActive,
		"yes", yes, "no", no,
		"bankApprovals", len(tx.BankApprovals))

	if next.Terminal() {
		o.finalize(ctx, tx)
	}
	return tx, nil
}

// finalize records the terminal outcome on the immutable ledger and emits the
// outcome event. Chain failures are logged and counted, never surfaced: the
// stored status is the source of truth and finalization is retried by the
// next recompute only if the status flips again, which it cannot. Operators
// watch chain_write_errors_total for stuck writes.
func (o *Orchestrator) finalize(ctx context.Context, tx *models.Transaction) {
	approved := tx.Status == models.StatusApproved
	if err := o.chain.RecordOutcome(ctx, tx.TransactionID, tx.Sender, tx.Amount, approved); err != nil {
		o.met.ChainWriteErrors.Inc()
		o.log.Error("chain write failed", "transactionId", tx.TransactionID, "err", err)
	}
	o.pub.Publish(events.Outcome{
		TransactionID: tx.TransactionID,
		Sender:        tx.Sender,
		Recipient:     tx.Recipient,
		Amount:        tx.Amount,
		Status:        tx.Status,
		FinalizedAt:   o.nowFunc().UTC(),
	})
}
