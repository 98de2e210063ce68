// Package store persists transactions and nodes. The production backend is
// MongoDB; an in-memory implementation with identical semantics backs the
// tests.
package store

import (
	"context"
	"errors"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

var (
	ErrNotFound = errors.New("not found")
	ErrExists   = errors.New("already exists")
)

// TransactionStore is the document store for transactions. Update replaces
// the whole document; callers are expected to serialize read-modify-write
// cycles per transaction id (the orchestrator holds a keyed lock).
type TransactionStore interface {
	Insert(ctx context.Context, tx *models.Transaction) error
	Get(ctx context.Context, id string) (*models.Transaction, error)
	Update(ctx context.Context, tx *models.Transaction) error
	// List returns all transactions, newest first.
	List(ctx context.Context) ([]*models.Transaction, error)
}

// NodeStore is the registry of voting nodes.
type NodeStore interface {
	Insert(ctx context.Context, n *models.Node) error
	GetByPublicKey(ctx context.Context, publicKey string) (*models.Node, error)
	GetByURL(ctx context.Context, url string) (*models.Node, error)
	Update(ctx context.Context, n *models.Node) error
	List(ctx context.Context) ([]*models.Node, error)
	// CountActive returns the consensus denominator: nodes with isActive set.
	CountActive(ctx context.Context) (int, error)
}
