package orchestrator

import (
	"context"
	"fmt"

	"github.com/AdotAyush/cedefi-banking/internal/models"
	"github.com/AdotAyush/cedefi-banking/internal/store"
)

// Node admission mirrors the administrative flow: nodes register PENDING with
// a neutral reputation and only count toward consensus once an admin approves
// them.

const (
	registerReputation = 50
	verifyReputation   = 10
)

// RegisterNode adds a node in PENDING state. Registering an already known URL
// or public key is a conflict.
func (o *Orchestrator) RegisterNode(ctx context.Context, url, name, publicKey string) (*models.Node, error) {
	if url == "" || name == "" || publicKey == "" {
		return nil, fmt.Errorf("%w: url, name and publicKey", ErrMissingField)
	}
	if _, err := o.nodes.GetByURL(ctx, url); err == nil {
		return nil, fmt.Errorf("node url %s: %w", url, store.ErrExists)
	}
	n := &models.Node{
		PublicKey:    publicKey,
		Name:         name,
		URL:          url,
		Status:       models.NodePending,
		IsActive:     false,
		Reputation:   registerReputation,
		History:      []models.HistoryEntry{},
		RegisteredAt: o.nowFunc().UTC(),
	}
	if err := o.nodes.Insert(ctx, n); err != nil {
		return nil, err
	}
	o.log.Info("node registered", "publicKey", publicKey, "url", url)
	return n, nil
}

// VerifyNode applies the admin decision: APPROVE activates the node and bumps
// its reputation, REJECT marks it fraudulent and zeroes it. Every action is
// appended to the node's history.
func (o *Orchestrator) VerifyNode(ctx context.Context, publicKey, action string) (*models.Node, error) {
	n, err := o.nodes.GetByPublicKey(ctx, publicKey)
	if err != nil {
		return nil, err
	}
	now := o.nowFunc().UTC()
	switch action {
	case "APPROVE":
		n.Status = models.NodeActive
		n.IsActive = true
		n.Reputation += verifyReputation
		n.History = append(n.History, models.HistoryEntry{Action: "Verified by Admin", Timestamp: now})
	case "REJECT":
		n.Status = models.NodeFraudulent
		n.IsActive = false
		n.Reputation = 0
		n.History = append(n.History, models.HistoryEntry{Action: "Rejected by Admin", Timestamp: now})
	default:
		return nil, fmt.Errorf("%w: action must be APPROVE or REJECT", ErrMissingField)
	}
	if err := o.nodes.Update(ctx, n); err != nil {
		return nil, err
	}
	o.log.Info("node verified", "publicKey", publicKey, "action", action, "status", n.Status)
	return n, nil
}

// ListNodes returns the full registry.
func (o *Orchestrator) ListNodes(ctx context.Context) ([]*models.Node, error) {
	return o.nodes.List(ctx)
}
