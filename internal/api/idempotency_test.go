package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRedis is an in-memory stand-in for the idempotency cache.
type fakeRedis struct {
	mu    sync.Mutex
	data  map[string]string
	locks map[string]bool
	down  bool
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string), locks: make(map[string]bool)}
}

func (f *fakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStringResult("", errors.New("connection refused"))
	}
	v, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(v, nil)
}

func (f *fakeRedis) SetNX(_ context.Context, key string, _ any, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewBoolResult(false, errors.New("connection refused"))
	}
	if f.locks[key] {
		return redis.NewBoolResult(false, nil)
	}
	f.locks[key] = true
	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Set(_ context.Context, key string, value any, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.down {
		return redis.NewStatusResult("", errors.New("connection refused"))
	}
	switch v := value.(type) {
	case []byte:
		f.data[key] = string(v)
	case string:
		f.data[key] = v
	}
	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.locks, k)
	}
	return redis.NewIntResult(int64(len(keys)), nil)
}

func newIdempotentHandler(rdb idempotencyClient, calls *int) http.Handler {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	inner := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		*calls++
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"transactionId":"tx-1"}`))
	})
	return Idempotency(rdb, log)(inner)
}

func serve(t *testing.T, h http.Handler, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/transactions", nil)
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestIdempotencyReplaysCachedResponse(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	first := serve(t, h, "key-1")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, 1, calls)
	assert.Empty(t, first.Header().Get("X-Idempotency-Hit"))

	// The retry replays the cached response, original status included,
	// without reaching the handler.
	second := serve(t, h, "key-1")
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Hit"))
	assert.Equal(t, 1, calls)
}

func TestIdempotencyDistinctKeysAreIndependent(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	serve(t, h, "key-1")
	serve(t, h, "key-2")
	assert.Equal(t, 2, calls)
}

func TestIdempotencyConflictWhileInFlight(t *testing.T) {
	rdb := newFakeRedis()
	rdb.locks[lockKeyPrefix+"key-1"] = true // first request still processing

	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	rec := serve(t, h, "key-1")
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Zero(t, calls)
}

func TestIdempotencyPassesThroughWhenRedisDown(t *testing.T) {
	rdb := newFakeRedis()
	rdb.down = true

	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	rec := serve(t, h, "key-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}

func TestIdempotencyIgnoresRequestsWithoutKey(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	serve(t, h, "")
	serve(t, h, "")
	assert.Equal(t, 2, calls)
	assert.Empty(t, rdb.data)
}

func TestIdempotencyReleasesLockAfterProcessing(t *testing.T) {
	rdb := newFakeRedis()
	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	serve(t, h, "key-1")
	require.False(t, rdb.locks[lockKeyPrefix+"key-1"])
}

func TestIdempotencyReprocessesUnreadableCacheEntry(t *testing.T) {
	rdb := newFakeRedis()
	rdb.data[cacheKeyPrefix+"key-1"] = "not json"

	calls := 0
	h := newIdempotentHandler(rdb, &calls)

	rec := serve(t, h, "key-1")
	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 1, calls)
}
