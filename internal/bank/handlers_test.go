package bank

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AdotAyush/cedefi-banking/internal/models"
)

func newBankServer(t *testing.T) *httptest.Server {
	t.Helper()
	svc := newService(t, NewPolicy(1000, nil, models.SecurityPolicy{}), &fakeLedger{}, nil)
	h := &Handlers{Svc: svc}
	srv := httptest.NewServer(h.NewRouter())
	t.Cleanup(srv.Close)
	return srv
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	resp, err := http.Post(url, "application/json", &buf)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestApproveEndpoint(t *testing.T) {
	srv := newBankServer(t)

	resp := postJSON(t, srv.URL+"/bank/approve", map[string]any{"transactionId": "tx-1", "amount": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.True(t, d.Approved)
	assert.NotEmpty(t, d.Signature)

	resp = postJSON(t, srv.URL+"/bank/approve", map[string]any{"transactionId": "tx-2", "amount": 5000})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.False(t, d.Approved)
	assert.Equal(t, "Amount exceeds limit", d.Reason)

	resp = postJSON(t, srv.URL+"/bank/approve", map[string]any{"amount": 1})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRejectEndpoint(t *testing.T) {
	srv := newBankServer(t)
	resp := postJSON(t, srv.URL+"/bank/reject", map[string]any{"transactionId": "tx-1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var d Decision
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&d))
	assert.False(t, d.Approved)
}

func TestSettingsEndpoint(t *testing.T) {
	srv := newBankServer(t)

	resp := postJSON(t, srv.URL+"/bank/settings", Settings{
		TrustedNodes:   []string{"did:cedefi:node:a"},
		SecurityPolicy: &models.SecurityPolicy{MinTrustedVotes: 1},
		AmountLimit:    250,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	getResp, err := http.Get(srv.URL + "/bank/settings")
	require.NoError(t, err)
	defer getResp.Body.Close()
	var s Settings
	require.NoError(t, json.NewDecoder(getResp.Body).Decode(&s))
	assert.Equal(t, 250.0, s.AmountLimit)
	assert.Equal(t, []string{"did:cedefi:node:a"}, s.TrustedNodes)
	require.NotNil(t, s.SecurityPolicy)
	assert.Equal(t, 1, s.SecurityPolicy.MinTrustedVotes)

	// A follow-up update without a securityPolicy leaves the quorum as is.
	resp = postJSON(t, srv.URL+"/bank/settings", map[string]any{"trustedNodes": []string{"did:cedefi:node:b"}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&s))
	require.NotNil(t, s.SecurityPolicy)
	assert.Equal(t, 1, s.SecurityPolicy.MinTrustedVotes)
	assert.Equal(t, 250.0, s.AmountLimit)
	assert.Equal(t, []string{"did:cedefi:node:b"}, s.TrustedNodes)
}

func TestInfoAndHealthEndpoints(t *testing.T) {
	srv := newBankServer(t)

	resp, err := http.Get(srv.URL + "/bank/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var info Info
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&info))
	assert.Equal(t, "BankA", info.BankID)

	health, err := http.Get(srv.URL + "/bank/health")
	require.NoError(t, err)
	defer health.Body.Close()
	assert.Equal(t, http.StatusOK, health.StatusCode)
}
