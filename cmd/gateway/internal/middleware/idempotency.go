package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/snippets/internal/auth"
)

const (
	idempotencyKeyPrefix = "snippets:idempotency:"
	maxIdempotencyKeyLen = 255
	idempotencyLockTTL   = 30 * time.Second
)

// replayedHeaders are the response headers stored with a replay
var replayedHeaders = []string{"Content-Type", "Location"}

// IdempotencyMiddleware makes POSTs carrying an Idempotency-Key safe to retry.
// The first 2xx response for a (caller, key) pair is stored and replayed;
// reusing the key with a different body is rejected. Without Redis it
// passes requests through.
type IdempotencyMiddleware struct {
	redis  *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewIdempotencyMiddleware creates a new idempotency middleware
func NewIdempotencyMiddleware(redis *redis.Client, logger *zap.Logger) *IdempotencyMiddleware {
	return &IdempotencyMiddleware{
		redis:  redis,
		logger: logger,
		ttl:    24 * time.Hour,
	}
}

// storedResponse is what a replay sends back
type storedResponse struct {
	Status      int               `json:"status"`
	Header      map[string]string `json:"header"`
	Body        []byte            `json:"body"`
	Fingerprint string            `json:"fingerprint"`
}

// captureWriter tees the response body so it can be stored
type captureWriter struct {
	statusRecorder
	body bytes.Buffer
}

func (c *captureWriter) Write(b []byte) (int, error) {
	c.body.Write(b)
	return c.statusRecorder.Write(b)
}

// Middleware returns the HTTP middleware function
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get("Idempotency-Key")
		if im.redis == nil || r.Method != http.MethodPost || key == "" {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLen {
			sendError(w, http.StatusBadRequest, "Idempotency-Key is too long")
			return
		}

		body, err := io.ReadAll(r.Body)
		if err != nil {
			sendError(w, http.StatusBadRequest, "Failed to read request body")
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		ctx := r.Context()
		storeKey := im.storeKey(r, key)
		fingerprint := fingerprintOf(r.URL.Path, body)

		stored, err := im.lookup(r, storeKey)
		switch {
		case err != nil:
			im.logger.Warn("Idempotency lookup failed, running request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		case stored != nil && stored.Fingerprint != fingerprint:
			sendError(w, http.StatusUnprocessableEntity, "Idempotency-Key was already used for a different request")
			return
		case stored != nil:
			im.logger.Debug("Replaying idempotent response",
				zap.String("idempotency_key", key),
				zap.String("path", r.URL.Path),
			)
			for name, value := range stored.Header {
				w.Header().Set(name, value)
			}
			w.Header().Set("X-Idempotency-Cached", "true")
			w.Header().Set("X-Idempotency-Key", key)
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		// one request per key at a time
		lockKey := storeKey + ":lock"
		acquired, err := im.redis.SetNX(ctx, lockKey, 1, idempotencyLockTTL).Result()
		if err != nil {
			im.logger.Warn("Idempotency lock failed, running request", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}
		if !acquired {
			sendError(w, http.StatusConflict, "A request with this Idempotency-Key is in progress")
			return
		}
		defer im.redis.Del(ctx, lockKey)

		cw := &captureWriter{statusRecorder: statusRecorder{ResponseWriter: w}}
		next.ServeHTTP(cw, r)

		if cw.status < 200 || cw.status >= 300 {
			return
		}
		resp := storedResponse{
			Status:      cw.status,
			Header:      make(map[string]string, len(replayedHeaders)),
			Body:        cw.body.Bytes(),
			Fingerprint: fingerprint,
		}
		for _, name := range replayedHeaders {
			if v := cw.Header().Get(name); v != "" {
				resp.Header[name] = v
			}
		}
		data, err := json.Marshal(resp)
		if err == nil {
			err = im.redis.Set(ctx, storeKey, data, im.ttl).Err()
		}
		if err != nil {
			im.logger.Error("Failed to store idempotent response",
				zap.Error(err),
				zap.String("idempotency_key", key),
			)
		}
	})
}

// storeKey scopes the client's key to the caller
func (im *IdempotencyMiddleware) storeKey(r *http.Request, key string) string {
	caller := "ip:" + ClientIP(r)
	if userCtx, ok := auth.UserFromContext(r.Context()); ok {
		caller = "user:" + userCtx.UserID.String()
	}
	sum := sha256.Sum256([]byte(caller + "\x00" + key))
	return idempotencyKeyPrefix + hex.EncodeToString(sum[:16])
}

func fingerprintOf(path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// lookup returns nil, nil when nothing is stored under key
func (im *IdempotencyMiddleware) lookup(r *http.Request, key string) (*storedResponse, error) {
	data, err := im.redis.Get(r.Context(), key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var resp storedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
