// Package models holds the data types shared by the orchestrator, the bank
// services and the stores. JSON field names mirror the wire format expected
// by the dashboards and the bank callbacks.
package models

import "time"

// Status is the lifecycle state of a transaction.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusRejected Status = "REJECTED"
)

// Terminal reports whether a status can never change again.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// RecipientStatus tracks whether the recipient has claimed approved funds.
type RecipientStatus string

const (
	RecipientPending RecipientStatus = "PENDING"
	RecipientClaimed RecipientStatus = "CLAIMED"
)

// Vote is a single node's decision on a transaction. One entry per voter.
type Vote struct {
	Voter     string    `json:"voter" bson:"voter"`
	Decision  bool      `json:"decision" bson:"decision"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// BankApproval is a signed approval from one bank. One entry per bankId.
type BankApproval struct {
	BankID    string    `json:"bankId" bson:"bankId"`
	Signature string    `json:"signature" bson:"signature"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Transaction is the unit of value transfer. It is created PENDING, mutated
// by votes and bank approvals, and becomes terminal exactly once. It is never
// deleted.
type Transaction struct {
	TransactionID   string          `json:"transactionId" bson:"transactionId"`
	Sender          string          `json:"sender" bson:"sender"`
	Recipient       string          `json:"recipient" bson:"recipient"`
	Amount          float64         `json:"amount" bson:"amount"`
	Signature       string          `json:"signature,omitempty" bson:"signature,omitempty"`
	Status          Status          `json:"status" bson:"status"`
	RecipientStatus RecipientStatus `json:"recipientStatus" bson:"recipientStatus"`
	Votes           []Vote          `json:"votes" bson:"votes"`
	BankApprovals   []BankApproval  `json:"bankApprovals" bson:"bankApprovals"`
	CreatedAt       time.Time       `json:"createdAt" bson:"createdAt"`
}

// HasVoted reports whether voter already appears in the vote list.
func (t *Transaction) HasVoted(voter string) bool {
	for _, v := range t.Votes {
		if v.Voter == voter {
			return true
		}
	}
	return false
}

// HasBankApproval reports whether bankID already appears in the approval list.
func (t *Transaction) HasBankApproval(bankID string) bool {
	for _, a := range t.BankApprovals {
		if a.BankID == bankID {
			return true
		}
	}
	return false
}

// Tally counts yes and no votes.
func (t *Transaction) Tally() (yes, no int) {
	for _, v := range t.Votes {
		if v.Decision {
			yes++
		} else {
			no++
		}
	}
	return yes, no
}

// NodeStatus is the admission state of a voting node.
type NodeStatus string

const (
	NodePending    NodeStatus = "PENDING"
	NodeActive     NodeStatus = "ACTIVE"
	NodeFraudulent NodeStatus = "FRAUDULENT"
)

// HistoryEntry is one administrative action recorded against a node.
type HistoryEntry struct {
	Action    string    `json:"action" bson:"action"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Node is a registered voting node. Only ACTIVE nodes count toward the
// consensus denominator.
type Node struct {
	PublicKey    string         `json:"publicKey" bson:"publicKey"`
	Name         string         `json:"name" bson:"name"`
	URL          string         `json:"url" bson:"url"`
	Status       NodeStatus     `json:"status" bson:"status"`
	IsActive     bool           `json:"isActive" bson:"isActive"`
	Reputation   int            `json:"reputation" bson:"reputation"`
	History      []HistoryEntry `json:"history" bson:"history"`
	RegisteredAt time.Time      `json:"registeredAt" bson:"registeredAt"`
}

// SecurityPolicy is the vote-quorum part of a bank's local policy.
type SecurityPolicy struct {
	MinTrustedVotes      int  `json:"minTrustedVotes"`
	RequireBankConsensus bool `json:"requireBankConsensus"`
}
