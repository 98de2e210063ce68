// Package broadcast fans approval requests out to every configured bank
// service. The coordinator is stateless and fail-soft: individual banks may
// time out, refuse the connection or answer with an error, and the broadcast
// still returns whatever approvals were collected.
package broadcast

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"syscall"
	"time"
)

const (
	defaultRequestTimeout = 5 * time.Second
	defaultRetryDelay     = 1 * time.Second
	defaultMaxRetries     = 2
	healthTimeout         = 2 * time.Second
)

// ApprovalRequest is the payload sent to each bank's /bank/approve endpoint.
type ApprovalRequest struct {
	TransactionID string  `json:"transactionId"`
	Sender        string  `json:"sender"`
	Amount        float64 `json:"amount"`
}

// ApprovalResponse is a bank's answer. Approved carries a signature; a
// refusal carries a reason instead.
type ApprovalResponse struct {
	Approved      bool   `json:"approved"`
	BankID        string `json:"bankId"`
	Signature     string `json:"signature,omitempty"`
	SignerAddress string `json:"signerAddress,omitempty"`
	Reason        string `json:"reason,omitempty"`
}

// BankHealth is one entry of a health sweep across the configured banks.
type BankHealth struct {
	URL    string `json:"url"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Coordinator broadcasts approval requests to a fixed set of bank endpoints.
type Coordinator struct {
	endpoints []string
	log       *slog.Logger
	client    *http.Client

	// Overridable in tests.
	requestTimeout time.Duration
	retryDelay     time.Duration
	maxRetries     int
}

// New returns a coordinator for the given bank base URLs.
func New(endpoints []string, log *slog.Logger) *Coordinator {
	return &Coordinator{
		endpoints:      endpoints,
		log:            log,
		client:         &http.Client{},
		requestTimeout: defaultRequestTimeout,
		retryDelay:     defaultRetryDelay,
		maxRetries:     defaultMaxRetries,
	}
}

// Broadcast sends the approval request to every bank concurrently and returns
// the approvals where the bank explicitly answered approved=true. It never
// returns an error: a fully offline bank set yields an empty slice.
func (c *Coordinator) Broadcast(ctx context.Context, req ApprovalRequest) []ApprovalResponse {
	c.log.Info("broadcasting to banks", "transactionId", req.TransactionID, "banks", len(c.endpoints))

	results := make([]*ApprovalResponse, len(c.endpoints))
	var wg sync.WaitGroup
	for i, url := range c.endpoints {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			results[i] = c.requestApproval(ctx, url, req)
		}(i, url)
	}
	wg.Wait()

	var approvals []ApprovalResponse
	for _, r := range results {
		if r != nil && r.Approved {
			approvals = append(approvals, *r)
		}
	}
	c.log.Info("broadcast complete", "transactionId", req.TransactionID,
		"approvals", len(approvals), "banks", len(c.endpoints))
	return approvals
}

// requestApproval asks a single bank, retrying on timeout only. Connection
// refusal means the bank is down; retrying immediately would only burn the
// delay budget, so it is treated as a permanent failure for this broadcast.
func (c *Coordinator) requestApproval(ctx context.Context, url string, req ApprovalRequest) *ApprovalResponse {
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		resp, err := c.tryOnce(ctx, url, req)
		if err == nil {
			return resp
		}
		switch {
		case isConnRefused(err):
			c.log.Warn("bank offline", "bank", url, "transactionId", req.TransactionID)
			return nil
		case isTimeout(err):
			c.log.Warn("bank timeout", "bank", url, "attempt", attempt+1, "timeout", c.requestTimeout)
			if attempt < c.maxRetries {
				select {
				case <-time.After(c.retryDelay):
				case <-ctx.Done():
					return nil
				}
				continue
			}
		default:
			c.log.Warn("bank request failed", "bank", url, "err", err)
			return nil
		}
	}
	return nil
}

func (c *Coordinator) tryOnce(ctx context.Context, url string, req ApprovalRequest) (*ApprovalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	callCtx, cancel := context.WithTimeout(ctx, c.requestTimeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		strings.TrimRight(url, "/")+"/bank/approve", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("bank http %d: %s", resp.StatusCode, string(b))
	}

	var out ApprovalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode bank response: %w", err)
	}
	return &out, nil
}

// CheckHealth probes every bank's liveness endpoint with a short timeout.
func (c *Coordinator) CheckHealth(ctx context.Context) []BankHealth {
	out := make([]BankHealth, len(c.endpoints))
	var wg sync.WaitGroup
	for i, url := range c.endpoints {
		wg.Add(1)
		go func(i int, url string) {
			defer wg.Done()
			out[i] = c.probe(ctx, url)
		}(i, url)
	}
	wg.Wait()
	return out
}

func (c *Coordinator) probe(ctx context.Context, url string) BankHealth {
	callCtx, cancel := context.WithTimeout(ctx, healthTimeout)
	defer cancel()
	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, strings.TrimRight(url, "/")+"/bank/health", nil)
	if err != nil {
		return BankHealth{URL: url, Status: "error", Error: err.Error()}
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return BankHealth{URL: url, Status: "offline", Error: err.Error()}
	}
	defer resp.Body.Close()
	io.CopyN(io.Discard, resp.Body, 64)
	if resp.StatusCode != http.StatusOK {
		return BankHealth{URL: url, Status: "offline", Error: fmt.Sprintf("http %d", resp.StatusCode)}
	}
	return BankHealth{URL: url, Status: "online"}
}

func isConnRefused(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
