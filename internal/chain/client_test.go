package chain

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// chainStub is a minimal in-memory chain service speaking the wire protocol.
type chainStub struct {
	mu      sync.Mutex
	records map[string]*Record
	creates int
}

func newChainStub() *chainStub {
	return &chainStub{records: make(map[string]*Record)}
}

func (s *chainStub) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chain/transactions/{id}", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok := s.records[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		json.NewEncoder(w).Encode(rec)
	})
	mux.HandleFunc("POST /chain/transactions", func(w http.ResponseWriter, r *http.Request) {
		var in Record
		json.NewDecoder(r.Body).Decode(&in)
		s.mu.Lock()
		defer s.mu.Unlock()
		s.creates++
		if _, ok := s.records[in.TransactionID]; ok {
			http.Error(w, "transaction already exists", http.StatusConflict)
			return
		}
		s.records[in.TransactionID] = &in
		w.WriteHeader(http.StatusCreated)
	})
	mux.HandleFunc("POST /chain/transactions/{id}/finalize", func(w http.ResponseWriter, r *http.Request) {
		var in struct {
			Approved bool `json:"approved"`
		}
		json.NewDecoder(r.Body).Decode(&in)
		s.mu.Lock()
		defer s.mu.Unlock()
		rec, ok := s.records[r.PathValue("id")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if rec.Finalized {
			http.Error(w, "Transaction already finalized", http.StatusBadRequest)
			return
		}
		rec.Finalized = true
		rec.Approved = in.Approved
		json.NewEncoder(w).Encode(rec)
	})
	return mux
}

func newClientAndStub(t *testing.T) (*Client, *chainStub) {
	t.Helper()
	stub := newChainStub()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, testLogger()), stub
}

func TestRecordOutcomeCreatesAndFinalizes(t *testing.T) {
	c, stub := newClientAndStub(t)
	ctx := context.Background()

	require.NoError(t, c.RecordOutcome(ctx, "tx-1", "did:cedefi:user:alice", 42, true))

	rec, ok, err := c.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Finalized)
	assert.True(t, rec.Approved)
	assert.Equal(t, "did:cedefi:user:alice", rec.Sender)
	assert.Equal(t, 1, stub.creates)
}

func TestRecordOutcomeIsIdempotent(t *testing.T) {
	c, stub := newClientAndStub(t)
	ctx := context.Background()

	require.NoError(t, c.RecordOutcome(ctx, "tx-1", "s", 1, true))
	// A second write of the same outcome succeeds without touching the chain.
	require.NoError(t, c.RecordOutcome(ctx, "tx-1", "s", 1, true))
	assert.Equal(t, 1, stub.creates)
}

func TestFinalizeAlreadyFinalizedIsSuccess(t *testing.T) {
	c, _ := newClientAndStub(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "tx-1", "s", 1))
	require.NoError(t, c.Finalize(ctx, "tx-1", false))
	// The stub answers 400 "Transaction already finalized" here.
	require.NoError(t, c.Finalize(ctx, "tx-1", false))
}

func TestRecordOutcomeFinalizesExistingRecord(t *testing.T) {
	c, stub := newClientAndStub(t)
	ctx := context.Background()

	require.NoError(t, c.Create(ctx, "tx-1", "s", 1))
	require.NoError(t, c.RecordOutcome(ctx, "tx-1", "s", 1, false))

	rec, ok, err := c.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, rec.Finalized)
	assert.False(t, rec.Approved)
	assert.Equal(t, 1, stub.creates)
}

func TestGetMissingRecord(t *testing.T) {
	c, _ := newClientAndStub(t)
	rec, ok, err := c.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, rec)
}

func TestCreateToleratesConflict(t *testing.T) {
	c, _ := newClientAndStub(t)
	ctx := context.Background()
	require.NoError(t, c.Create(ctx, "tx-1", "s", 1))
	require.NoError(t, c.Create(ctx, "tx-1", "s", 1))
}

func TestChainErrorsSurface(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()
	c := New(srv.URL, testLogger())

	_, _, err := c.Get(context.Background(), "tx-1")
	assert.Error(t, err)
	assert.Error(t, c.Finalize(context.Background(), "tx-1", true))
}
