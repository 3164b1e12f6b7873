package middleware

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// storedResponse is the replayable part of a response.
type storedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// bodyRecorder tees the response body so it can be stored after the handler returns.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// idempotencyStore keeps responses and in-flight claims in Redis.
type idempotencyStore struct {
	client *redis.Client
}

func (s idempotencyStore) get(ctx context.Context, key string) (*storedResponse, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var resp storedResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (s idempotencyStore) put(ctx context.Context, key string, resp storedResponse) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, idempotencyTTL).Err()
}

// claim marks key as in flight. It reports false when another request holds the claim.
func (s idempotencyStore) claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key+":inflight", 1, idempotencyLockTTL).Result()
}

func (s idempotencyStore) release(ctx context.Context, key string) {
	s.client.Del(ctx, key+":inflight")
}

// IdempotencyMiddleware replays the stored response of a mutating request that repeats
// an Idempotency-Key. Keys are scoped to the authenticated user and route, and a request
// arriving while the first one is still running is rejected with 409. Redis failures
// degrade to running the request normally.
func IdempotencyMiddleware(redisClient *redis.Client, logger *zap.Logger) gin.HandlerFunc {
	store := idempotencyStore{client: redisClient}

	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
		default:
			c.Next()
			return
		}

		clientKey := c.GetHeader(idempotencyHeader)
		if clientKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		key := "idempotency:" + UserID(c) + ":" + c.Request.Method + ":" + c.FullPath() + ":" + clientKey

		stored, err := store.get(ctx, key)
		switch {
		case err == nil:
			if stored.ContentType != "" {
				c.Header("Content-Type", stored.ContentType)
			}
			c.Header("Idempotent-Replayed", "true")
			c.Data(stored.StatusCode, stored.ContentType, stored.Body)
			c.Abort()
			return
		case !errors.Is(err, redis.Nil):
			logger.Warn("idempotency lookup failed", zap.String("key", key), zap.Error(err))
			c.Next()
			return
		}

		claimed, err := store.claim(ctx, key)
		if err == nil && !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error":   "conflict",
				"message": "a request with this idempotency key is in progress",
			})
			return
		}
		// Stored after the request context may be cancelled.
		detached := context.WithoutCancel(ctx)
		if claimed {
			defer store.release(detached, key)
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder

		c.Next()

		// Server errors are not stored so the client can retry.
		status := recorder.Status()
		if status >= http.StatusOK && status < http.StatusInternalServerError {
			err := store.put(detached, key, storedResponse{
				StatusCode:  status,
				ContentType: recorder.Header().Get("Content-Type"),
				Body:        recorder.body.Bytes(),
			})
			if err != nil {
				logger.Warn("failed to store idempotent response",
					zap.String("key", key),
					zap.Int("status", status),
					zap.Error(err))
			}
		}
	}
}
