package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	idempotencyTTL    = 24 * time.Hour
	lockTimeout       = 10 * time.Second

	cacheKeyPrefix = "idempotency:"
	lockKeyPrefix  = "idempotency-lock:"
)

// idempotencyClient is the slice of *redis.Client the middleware needs; tests
// substitute it.
type idempotencyClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	SetNX(ctx context.Context, key string, value any, expiration time.Duration) *redis.BoolCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// cachedResponse is the stored shape of a replayable response.
type cachedResponse struct {
	Status int    `json:"status"`
	Body   string `json:"body"`
}

// responseRecorder captures status and body so a successful response can be
// replayed for a retried request.
type responseRecorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *responseRecorder) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseRecorder) Write(b []byte) (int, error) {
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// Idempotency deduplicates POSTs carrying an Idempotency-Key header. A cached
// response is replayed with its original status; a concurrent request with
// the same key gets 409 while the first one holds the lock. Requests without
// the header pass through untouched.
func Idempotency(rdb idempotencyClient, log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			cacheKey := cacheKeyPrefix + key
			lockKey := lockKeyPrefix + key

			if raw, err := rdb.Get(ctx, cacheKey).Result(); err == nil {
				var cached cachedResponse
				if err := json.Unmarshal([]byte(raw), &cached); err == nil {
					log.Info("idempotency cache hit", "key", key)
					w.Header().Set("Content-Type", "application/json")
					w.Header().Set("X-Idempotency-Hit", "true")
					w.WriteHeader(cached.Status)
					_, _ = w.Write([]byte(cached.Body))
					return
				}
				log.Warn("idempotency cache entry unreadable, reprocessing", "key", key)
			}

			acquired, err := rdb.SetNX(ctx, lockKey, "processing", lockTimeout).Result()
			if err != nil {
				// Redis being down must not block transaction creation.
				log.Warn("idempotency lock unavailable, passing through", "err", err)
				next.ServeHTTP(w, r)
				return
			}
			if !acquired {
				writeError(w, http.StatusConflict, "a request with this idempotency key is in flight")
				return
			}
			defer func() {
				if err := rdb.Del(ctx, lockKey).Err(); err != nil {
					log.Warn("idempotency lock release failed", "key", key, "err", err)
				}
			}()

			rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			if rec.status >= 200 && rec.status < 300 {
				entry, err := json.Marshal(cachedResponse{Status: rec.status, Body: rec.body.String()})
				if err == nil {
					err = rdb.Set(ctx, cacheKey, entry, idempotencyTTL).Err()
				}
				if err != nil {
					log.Warn("idempotency cache store failed", "key", key, "err", err)
				}
			}
		})
	}
}
