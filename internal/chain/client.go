// Package chain talks to the immutable ledger service that records terminal
// transaction outcomes. The ledger is write-once per transaction: a record is
// created at most once and finalized at most once. RecordOutcome folds the
// whole exists/create/finalize sequence into one idempotent call.
package chain

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
)

// Record is the on-chain view of a transaction outcome.
type Record struct {
	TransactionID string    `json:"transactionId"`
	Sender        string    `json:"sender"`
	Amount        float64   `json:"amount"`
	Approved      bool      `json:"approved"`
	Finalized     bool      `json:"finalized"`
	Timestamp     time.Time `json:"timestamp"`
}

// Client is an HTTP client for the chain service.
type Client struct {
	base string
	h    *http.Client
	log  *slog.Logger
}

// New returns a client with a bounded request timeout.
func New(base string, log *slog.Logger) *Client {
	return &Client{
		base: strings.TrimRight(base, "/"),
		h:    &http.Client{Timeout: 10 * time.Second},
		log:  log,
	}
}

// Get fetches the chain record for id. A missing record is reported with
// ok=false and a nil error.
func (c *Client) Get(ctx context.Context, id string) (rec *Record, ok bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/chain/transactions/"+id, nil)
	if err != nil {
		return nil, false, err
	}
	resp, err := c.h.Do(req)
	if err != nil {
		return nil, false, fmt.Errorf("chain get: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound:
		return nil, false, nil
	case http.StatusOK:
		var r Record
		if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
			return nil, false, fmt.Errorf("chain decode: %w", err)
		}
		return &r, true, nil
	default:
		b, _ := io.ReadAll(resp.Body)
		return nil, false, fmt.Errorf("chain get http %d: %s", resp.StatusCode, string(b))
	}
}

// Create registers a transaction on the chain ahead of finalization.
func (c *Client) Create(ctx context.Context, id, sender string, amount float64) error {
	body, _ := json.Marshal(map[string]any{
		"transactionId": id,
		"sender":        sender,
		"amount":        amount,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chain/transactions", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.h.Do(req)
	if err != nil {
		return fmt.Errorf("chain create: %w", err)
	}
	defer resp.Body.Close()
	// 409 means the record already exists, which is fine for our caller.
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusConflict {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("chain create http %d: %s", resp.StatusCode, string(b))
	}
	return nil
}

// Finalize marks the record approved or rejected. An "already finalized"
// response is success: the outcome is immutable and a second finalization of
// the same transaction must not surface as an error.
func (c *Client) Finalize(ctx context.Context, id string, approved bool) error {
	body, _ := json.Marshal(map[string]bool{"approved": approved})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+"/chain/transactions/"+id+"/finalize", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.h.Do(req)
	if err != nil {
		return fmt.Errorf("chain finalize: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	b, _ := io.ReadAll(resp.Body)
	if alreadyFinalized(resp.StatusCode, b) {
		c.log.Info("chain record already finalized", "transactionId", id)
		return nil
	}
	return fmt.Errorf("chain finalize http %d: %s", resp.StatusCode, string(b))
}

// RecordOutcome performs the full write-once sequence: look the record up,
// create it if missing, then finalize it.
func (c *Client) RecordOutcome(ctx context.Context, id, sender string, amount float64, approved bool) error {
	rec, ok, err := c.Get(ctx, id)
	if err != nil {
		return err
	}
	if ok && rec.Finalized {
		c.log.Info("chain record already finalized", "transactionId", id)
		return nil
	}
	if !ok {
		if err := c.Create(ctx, id, sender, amount); err != nil {
			return err
		}
	}
	return c.Finalize(ctx, id, approved)
}

func alreadyFinalized(status int, body []byte) bool {
	if status != http.StatusConflict && status != http.StatusBadRequest {
		return false
	}
	return strings.Contains(strings.ToLower(string(body)), "already finalized")
}
