package orchestrator

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdotAyush/cedefi-banking/internal/broadcast"
	"github.com/AdotAyush/cedefi-banking/internal/metrics"
	"github.com/AdotAyush/cedefi-banking/internal/models"
	"github.com/AdotAyush/cedefi-banking/internal/store"
)

type fakeBroadcaster struct {
	approvals []broadcast.ApprovalResponse
	calls     atomic.Int32
}

func (f *fakeBroadcaster) Broadcast(_ context.Context, _ broadcast.ApprovalRequest) []broadcast.ApprovalResponse {
	f.calls.Add(1)
	return f.approvals
}

type chainCall struct {
	ID       string
	Approved bool
}

type fakeChain struct {
	mu    sync.Mutex
	calls []chainCall
	err   error
}

func (f *fakeChain) RecordOutcome(_ context.Context, id, _ string, _ float64, approved bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, chainCall{ID: id, Approved: approved})
	return f.err
}

func (f *fakeChain) Calls() []chainCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]chainCall(nil), f.calls...)
}

type fixture struct {
	orch  *Orchestrator
	txs   *store.MemoryTxStore
	nodes *store.MemoryNodeStore
	banks *fakeBroadcaster
	chain *fakeChain
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		txs:   store.NewMemoryTxStore(),
		nodes: store.NewMemoryNodeStore(),
		banks: &fakeBroadcaster{},
		chain: &fakeChain{},
	}
	lg := slog.New(slog.NewTextHandler(io.Discard, nil))
	met := metrics.New(prometheus.NewRegistry())
	f.orch = New(f.txs, f.nodes, f.banks, f.chain, nil, met, lg)
	return f
}

// addActiveNodes registers and approves n nodes, returning their DIDs.
func (f *fixture) addActiveNodes(t *testing.T, n int) []string {
	t.Helper()
	ctx := context.Background()
	dids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		pk := "pk-" + string(rune('a'+i))
		_, err := f.orch.RegisterNode(ctx, "http://node-"+pk, "node-"+pk, pk)
		require.NoError(t, err)
		_, err = f.orch.VerifyNode(ctx, pk, "APPROVE")
		require.NoError(t, err)
		dids = append(dids, "did:cedefi:node:"+pk)
	}
	return dids
}

func validCreate(id string) CreateRequest {
	return CreateRequest{
		TransactionID: id,
		Sender:        "did:cedefi:user:alice",
		Recipient:     "did:cedefi:user:bob",
		Amount:        250,
	}
}

func TestCreateValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Create(ctx, CreateRequest{Sender: "did:a:b", Recipient: "did:a:c", Amount: 1})
	assert.ErrorIs(t, err, ErrMissingField)

	req := validCreate("tx-1")
	req.Sender = "not-a-did"
	_, err = f.orch.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidDID)

	req = validCreate("tx-1")
	req.Amount = -3
	_, err = f.orch.Create(ctx, req)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// Nothing was persisted by the failed attempts.
	_, err = f.orch.Get(ctx, "tx-1")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestCreateAndDuplicate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tx, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tx.Status)
	assert.Equal(t, models.RecipientPending, tx.RecipientStatus)

	_, err = f.orch.Create(ctx, validCreate("tx-1"))
	assert.ErrorIs(t, err, store.ErrExists)
}

func TestVoteDeduplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 5)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", false)
	assert.ErrorIs(t, err, ErrDuplicateVote)

	tx, err := f.orch.Get(ctx, "tx-1")
	require.NoError(t, err)
	require.Len(t, tx.Votes, 1)
	assert.True(t, tx.Votes[0].Decision)
}

func TestVoteUnknownTransaction(t *testing.T) {
	f := newFixture(t)
	_, err := f.orch.Vote(context.Background(), "missing", "did:cedefi:node:x", true)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestRuleASupermajorityApproves(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 3)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	tx, err := f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, tx.Status)

	tx, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-b", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
	assert.Equal(t, models.RecipientPending, tx.RecipientStatus)

	calls := f.chain.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, chainCall{ID: "tx-1", Approved: true}, calls[0])
}

func TestMajorityNoRejects(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 3)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", false)
	require.NoError(t, err)
	tx, err := f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-b", false)
	require.NoError(t, err)

	assert.Equal(t, models.StatusRejected, tx.Status)
	calls := f.chain.Calls()
	require.Len(t, calls, 1)
	assert.False(t, calls[0].Approved)
}

func TestRuleBBankAssistedApproval(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 4)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)
	tx, err := f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-b", true)
	require.NoError(t, err)
	// Rule A needs 3 of 4; two yes votes alone stay pending.
	assert.Equal(t, models.StatusPending, tx.Status)

	tx, err = f.orch.AddBankApproval(ctx, "tx-1", "BankA", "sig", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
}

func TestTerminalStatusIsMonotonic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 3)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)
	tx, err := f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-b", true)
	require.NoError(t, err)
	require.Equal(t, models.StatusApproved, tx.Status)

	// A later no vote is recorded but cannot flip the outcome.
	tx, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-c", false)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
	assert.Len(t, tx.Votes, 3)

	// And the chain was written exactly once.
	assert.Len(t, f.chain.Calls(), 1)
}

func TestBankApprovalDeduplication(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 5)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	_, err = f.orch.AddBankApproval(ctx, "tx-1", "BankA", "sig-1", true)
	require.NoError(t, err)
	tx, err := f.orch.AddBankApproval(ctx, "tx-1", "BankA", "sig-2", true)
	require.NoError(t, err)

	require.Len(t, tx.BankApprovals, 1)
	assert.Equal(t, "sig-1", tx.BankApprovals[0].Signature)
}

func TestBankRefusalRecordsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	tx, err := f.orch.AddBankApproval(ctx, "tx-1", "BankA", "", false)
	require.NoError(t, err)
	assert.Empty(t, tx.BankApprovals)
}

func TestBroadcastMerge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 5)
	f.banks.approvals = []broadcast.ApprovalResponse{
		{Approved: true, BankID: "BankA", Signature: "sig-a"},
		{Approved: true, BankID: "BankB", Signature: "sig-b"},
	}
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	// Run the broadcast path synchronously for determinism.
	f.orch.broadcastAndMerge(ctx, "tx-1", "did:cedefi:user:alice", 250)

	tx, err := f.orch.Get(ctx, "tx-1")
	require.NoError(t, err)
	assert.Len(t, tx.BankApprovals, 2)
}

func TestClaimLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.addActiveNodes(t, 1)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	// Claiming a pending transaction is refused.
	_, err = f.orch.Claim(ctx, "tx-1")
	assert.ErrorIs(t, err, ErrNotApproved)

	_, err = f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)

	tx, err := f.orch.Claim(ctx, "tx-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecipientClaimed, tx.RecipientStatus)

	_, err = f.orch.Claim(ctx, "tx-1")
	assert.ErrorIs(t, err, ErrAlreadyClaimed)
}

func TestFaucet(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.orch.Faucet(ctx, "bogus", 100)
	assert.ErrorIs(t, err, ErrInvalidDID)

	tx, err := f.orch.Faucet(ctx, "did:cedefi:user:bob", 100)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
	assert.Equal(t, FaucetSender, tx.Sender)
	assert.Empty(t, tx.Votes)
	assert.Empty(t, tx.BankApprovals)

	calls := f.chain.Calls()
	require.Len(t, calls, 1)
	assert.True(t, calls[0].Approved)

	// No banks are consulted for system-issued funds.
	assert.Zero(t, f.banks.calls.Load())
}

func TestChainFailureDoesNotFailTheVote(t *testing.T) {
	f := newFixture(t)
	f.chain.err = errors.New("chain rpc unreachable")
	ctx := context.Background()
	f.addActiveNodes(t, 1)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	tx, err := f.orch.Vote(ctx, "tx-1", "did:cedefi:node:pk-a", true)
	require.NoError(t, err)
	assert.Equal(t, models.StatusApproved, tx.Status)
}

func TestConcurrentVotesAreSerialized(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	dids := f.addActiveNodes(t, 10)
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for _, did := range dids {
		wg.Add(1)
		go func(did string) {
			defer wg.Done()
			_, _ = f.orch.Vote(ctx, "tx-1", did, true)
		}(did)
	}
	wg.Wait()

	tx, err := f.orch.Get(ctx, "tx-1")
	require.NoError(t, err)
	// Every vote survives: no lost updates under concurrency.
	assert.Len(t, tx.Votes, 10)
	assert.Equal(t, models.StatusApproved, tx.Status)
	assert.Len(t, f.chain.Calls(), 1)
}

func TestListNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orch.Create(ctx, validCreate("tx-1"))
	require.NoError(t, err)
	_, err = f.orch.Create(ctx, validCreate("tx-2"))
	require.NoError(t, err)

	txs, err := f.orch.List(ctx)
	require.NoError(t, err)
	require.Len(t, txs, 2)
}
