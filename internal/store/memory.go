package store

import (
	"context"
	"sort"
	"sync"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// MemoryTxStore is a map-backed TransactionStore used in tests and local runs
// without a database. Documents are copied on the way in and out so callers
// never share memory with the store.
type MemoryTxStore struct {
	mu  sync.RWMutex
	txs map[string]*models.Transaction
}

func NewMemoryTxStore() *MemoryTxStore {
	return &MemoryTxStore{txs: make(map[string]*models.Transaction)}
}

func (s *MemoryTxStore) Insert(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.TransactionID]; ok {
		return ErrExists
	}
	s.txs[tx.TransactionID] = copyTx(tx)
	return nil
}

func (s *MemoryTxStore) Get(_ context.Context, id string) (*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tx, ok := s.txs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyTx(tx), nil
}

func (s *MemoryTxStore) Update(_ context.Context, tx *models.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.txs[tx.TransactionID]; !ok {
		return ErrNotFound
	}
	s.txs[tx.TransactionID] = copyTx(tx)
	return nil
}

func (s *MemoryTxStore) List(_ context.Context) ([]*models.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Transaction, 0, len(s.txs))
	for _, tx := range s.txs {
		out = append(out, copyTx(tx))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func copyTx(tx *models.Transaction) *models.Transaction {
	cp := *tx
	cp.Votes = append([]models.Vote(nil), tx.Votes...)
	cp.BankApprovals = append([]models.BankApproval(nil), tx.BankApprovals...)
	return &cp
}

// MemoryNodeStore is the in-memory NodeStore counterpart.
type MemoryNodeStore struct {
	mu    sync.RWMutex
	nodes map[string]*models.Node
}

func NewMemoryNodeStore() *MemoryNodeStore {
	return &MemoryNodeStore{nodes: make(map[string]*models.Node)}
}

func (s *MemoryNodeStore) Insert(_ context.Context, n *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.PublicKey]; ok {
		return ErrExists
	}
	s.nodes[n.PublicKey] = copyNode(n)
	return nil
}

func (s *MemoryNodeStore) GetByPublicKey(_ context.Context, publicKey string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n, ok := s.nodes[publicKey]
	if !ok {
		return nil, ErrNotFound
	}
	return copyNode(n), nil
}

func (s *MemoryNodeStore) GetByURL(_ context.Context, url string) (*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, n := range s.nodes {
		if n.URL == url {
			return copyNode(n), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryNodeStore) Update(_ context.Context, n *models.Node) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.nodes[n.PublicKey]; !ok {
		return ErrNotFound
	}
	s.nodes[n.PublicKey] = copyNode(n)
	return nil
}

func (s *MemoryNodeStore) List(_ context.Context) ([]*models.Node, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Node, 0, len(s.nodes))
	for _, n := range s.nodes {
		out = append(out, copyNode(n))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RegisteredAt.Before(out[j].RegisteredAt) })
	return out, nil
}

func (s *MemoryNodeStore) CountActive(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, n := range s.nodes {
		if n.IsActive {
			count++
		}
	}
	return count, nil
}

func copyNode(n *models.Node) *models.Node {
	cp := *n
	cp.History = append([]models.HistoryEntry(nil), n.History...)
	return &cp
}
