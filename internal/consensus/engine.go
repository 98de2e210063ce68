// Package consensus computes a transaction's next lifecycle status from the
// vote tally and the bank approval count. Evaluate is a pure function so the
// same counters always produce the same outcome, wherever it is recomputed.
package consensus

import "github.com/AdotAyush/cedefi-banking/internal/models"

// Rejection needs a strict majority of active nodes voting no.
// Rule A approves on a two-thirds supermajority of yes votes.
// Rule B approves on at least one bank approval plus a half quorum of yes votes.
//
// The rejection check runs before either approval rule: when both thresholds
// are met at once, rejection wins. Keep that ordering.

// Evaluate returns the status the transaction should hold given the current
// counters. Terminal statuses are sticky: once APPROVED or REJECTED the input
// status is returned unchanged.
func Evaluate(totalActiveNodes, yesVotes, noVotes, bankApprovals int, current models.Status) models.Status {
	if current.Terminal() {
		return current
	}
	// With zero active nodes there is no quorum to measure against. Stay
	// PENDING rather than approving or rejecting vacuously.
	if totalActiveNodes <= 0 {
		return models.StatusPending
	}

	if noVotes >= totalActiveNodes/2+1 {
		return models.StatusRejected
	}

	if yesVotes >= ceilDiv(2*totalActiveNodes, 3) {
		return models.StatusApproved
	}

	if bankApprovals >= 1 && yesVotes >= ceilDiv(totalActiveNodes, 2) {
		return models.StatusApproved
	}

	return models.StatusPending
}

// ceilDiv returns ceil(a/b) for positive a and b.
func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
