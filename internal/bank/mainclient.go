package bank

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

// MainClient talks to the main-system service: fetching transactions for vote
// verification and validator polling, casting validator votes, and delivering
// the post-signing approval callback.
//
// The read path sits behind a circuit breaker. Vote verification is
// fail-closed, so once the main system starts timing out the breaker turns
// repeated slow failures into immediate refusals.
type MainClient struct {
	base string
	h    *http.Client
	log  *slog.Logger
	cb   *gobreaker.CircuitBreaker
}

// NewMainClient builds a client for the main-system base URL.
func NewMainClient(base string, log *slog.Logger) *MainClient {
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "main-system",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("breaker state change", "target", name, "from", from.String(), "to", to.String())
		},
	})
	return &MainClient{
		base: strings.TrimRight(base, "/"),
		h:    &http.Client{Timeout: 5 * time.Second},
		log:  log,
		cb:   cb,
	}
}

// GetTransaction fetches one transaction, including its current vote list.
func (c *MainClient) GetTransaction(ctx context.Context, id string) (*models.Transaction, error) {
	out, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/transactions/"+id, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.h.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("main system http %d: %s", resp.StatusCode, string(b))
		}
		var tx models.Transaction
		if err := json.NewDecoder(resp.Body).Decode(&tx); err != nil {
			return nil, fmt.Errorf("decode transaction: %w", err)
		}
		return &tx, nil
	})
	if err != nil {
		return nil, err
	}
	return out.(*models.Transaction), nil
}

// ListTransactions fetches all transactions, newest first.
func (c *MainClient) ListTransactions(ctx context.Context) ([]*models.Transaction, error) {
	out, err := c.cb.Execute(func() (any, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/transactions", nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.h.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			b, _ := io.ReadAll(resp.Body)
			return nil, fmt.Errorf("main system http %d: %s", resp.StatusCode, string(b))
		}
		var txs []*models.Transaction
		if err := json.NewDecoder(resp.Body).Decode(&txs); err != nil {
			return nil, fmt.Errorf("decode transactions: %w", err)
		}
		return txs, nil
	})
	if err != nil {
		return nil, err
	}
	return out.([]*models.Transaction), nil
}

// Vote casts a validator vote on a transaction.
func (c *MainClient) Vote(ctx context.Context, id, voter string, decision bool) error {
	body, _ := json.Marshal(map[string]any{"voter": voter, "decision": decision})
	return c.post(ctx, "/transactions/"+id+"/vote", body)
}

// NotifyApproval delivers the bank-approval callback after signing. Callers
// treat failures as best-effort: the broadcast merge path remains the source
// of truth.
func (c *MainClient) NotifyApproval(ctx context.Context, id, bankID, signature string) error {
	body, _ := json.Marshal(map[string]any{
		"bankId":    bankID,
		"signature": signature,
		"approved":  true,
	})
	return c.post(ctx, "/transactions/"+id+"/bank-approval", body)
}

func (c *MainClient) post(ctx context.Context, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.h.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= http.StatusBadRequest {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("main system http %d: %s", resp.StatusCode, string(b))
	}
	return nil
}
