// Package chainledger implements the immutable outcome ledger served by
// chaind. Records are write-once: created at most once per transaction id and
// finalized at most once. There is no update or delete surface.
package chainledger

import (
	"errors"
	"sync"
	"time"

	"github.com/AdotAyush/cedefi-banking/internal/chain"
)

var (
	ErrExists           = errors.New("transaction already exists")
	ErrNotFound         = errors.New("transaction not found")
	ErrAlreadyFinalized = errors.New("transaction already finalized")
)

// Ledger is the in-memory record store. Records are kept in append order.
type Ledger struct {
	mu      sync.RWMutex
	byID    map[string]*chain.Record
	ordered []*chain.Record
	nowFunc func() time.Time
}

func New() *Ledger {
	return &Ledger{
		byID:    make(map[string]*chain.Record),
		nowFunc: time.Now,
	}
}

// Create registers a new record in non-finalized state.
func (l *Ledger) Create(id, sender string, amount float64) (*chain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.byID[id]; ok {
		return nil, ErrExists
	}
	rec := &chain.Record{
		TransactionID: id,
		Sender:        sender,
		Amount:        amount,
		Timestamp:     l.nowFunc().UTC(),
	}
	l.byID[id] = rec
	l.ordered = append(l.ordered, rec)
	return copyRecord(rec), nil
}

// Finalize stamps the outcome onto a record. A record finalizes exactly once;
// the second attempt fails with ErrAlreadyFinalized regardless of the outcome
// it carries.
func (l *Ledger) Finalize(id string, approved bool) (*chain.Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	rec, ok := l.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	if rec.Finalized {
		return nil, ErrAlreadyFinalized
	}
	rec.Finalized = true
	rec.Approved = approved
	return copyRecord(rec), nil
}

// Get fetches one record.
func (l *Ledger) Get(id string) (*chain.Record, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	rec, ok := l.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyRecord(rec), nil
}

// List returns all records in creation order.
func (l *Ledger) List() []*chain.Record {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]*chain.Record, len(l.ordered))
	for i, rec := range l.ordered {
		out[i] = copyRecord(rec)
	}
	return out
}

func copyRecord(rec *chain.Record) *chain.Record {
	cp := *rec
	return &cp
}
