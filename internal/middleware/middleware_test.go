package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var testSecret = []byte("test-secret")

func init() {
	gin.SetMode(gin.TestMode)
}

func bearer(t *testing.T, userID string) string {
	t.Helper()
	token, err := IssueToken(testSecret, userID, time.Hour, time.Now())
	require.NoError(t, err)
	return "Bearer " + token
}

func newAuthRouter() *gin.Engine {
	r := gin.New()
	r.Use(Auth(testSecret))
	r.GET("/me", func(c *gin.Context) {
		c.String(http.StatusOK, UserID(c))
	})
	return r
}

func TestAuth_ValidToken(t *testing.T) {
	r := newAuthRouter()

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", bearer(t, "renter-1"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "renter-1", w.Body.String())
}

func TestAuth_Rejections(t *testing.T) {
	expired, err := IssueToken(testSecret, "renter-1", time.Hour, time.Now().Add(-2*time.Hour))
	require.NoError(t, err)

	wrongKey, err := IssueToken([]byte("other"), "renter-1", time.Hour, time.Now())
	require.NoError(t, err)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(testSecret)
	require.NoError(t, err)

	noneAlg, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "renter-1"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"not bearer", "Basic abc"},
		{"empty token", "Bearer "},
		{"garbage", "Bearer not-a-jwt"},
		{"expired", "Bearer " + expired},
		{"wrong key", "Bearer " + wrongKey},
		{"no subject", "Bearer " + noSubject},
		{"none algorithm", "Bearer " + noneAlg},
	}

	r := newAuthRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.Contains(t, w.Body.String(), `"error":"unauthorized"`)
		})
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(CORSMiddleware())
	r.POST("/v1/bookings", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/bookings", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "Idempotency-Key")
}

func TestRequestLogger_LevelsByStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)

	r := gin.New()
	r.Use(RequestLogger(zap.New(core)))
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(assert.AnError)
		c.Status(http.StatusInternalServerError)
	})

	for _, path := range []string{"/ok", "/missing", "/boom"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	entries := logs.All()
	require.Len(t, entries, 3)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
	assert.Equal(t, zap.ErrorLevel, entries[2].Level)
	assert.Equal(t, "/boom", entries[2].ContextMap()["path"])
	assert.Contains(t, entries[2].ContextMap()["error"], assert.AnError.Error())
}

func newIdempotencyRouter(t *testing.T, handler gin.HandlerFunc) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()
	return newIdempotencyRouterWithLogger(t, zap.NewNop(), handler)
}

func newIdempotencyRouterWithLogger(t *testing.T, logger *zap.Logger, handler gin.HandlerFunc) (*gin.Engine, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	r := gin.New()
	r.Use(Auth(testSecret), IdempotencyMiddleware(client, logger))
	r.POST("/v1/bookings", handler)
	return r, mr
}

func postBooking(t *testing.T, r *gin.Engine, userID, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/bookings", strings.NewReader(`{}`))
	req.Header.Set("Authorization", bearer(t, userID))
	if key != "" {
		req.Header.Set(idempotencyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyMiddleware_ReplaysResponse(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdempotencyRouter(t, func(c *gin.Context) {
		n := calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	})

	first := postBooking(t, r, "renter-1", "key-1")
	second := postBooking(t, r, "renter-1", "key-1")

	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get("Idempotent-Replayed"))
	assert.Equal(t, int32(1), calls.Load())
}

func TestIdempotencyMiddleware_KeysAreScopedPerUser(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdempotencyRouter(t, func(c *gin.Context) {
		calls.Add(1)
		c.JSON(http.StatusCreated, gin.H{"user": UserID(c)})
	})

	postBooking(t, r, "renter-1", "shared")
	other := postBooking(t, r, "renter-2", "shared")

	assert.Equal(t, int32(2), calls.Load())
	assert.JSONEq(t, `{"user":"renter-2"}`, other.Body.String())
}

func TestIdempotencyMiddleware_ServerErrorsAreNotCached(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdempotencyRouter(t, func(c *gin.Context) {
		if calls.Add(1) == 1 {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	assert.Equal(t, http.StatusInternalServerError, postBooking(t, r, "renter-1", "key-1").Code)
	assert.Equal(t, http.StatusCreated, postBooking(t, r, "renter-1", "key-1").Code)
	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyMiddleware_InFlightRequestConflicts(t *testing.T) {
	r, mr := newIdempotencyRouter(t, func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	require.NoError(t, mr.Set("idempotency:renter-1:POST:/v1/bookings:key-1:inflight", "1"))

	w := postBooking(t, r, "renter-1", "key-1")

	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestIdempotencyMiddleware_WithoutKeyAlwaysRuns(t *testing.T) {
	var calls atomic.Int32
	r, _ := newIdempotencyRouter(t, func(c *gin.Context) {
		calls.Add(1)
		c.Status(http.StatusCreated)
	})

	postBooking(t, r, "renter-1", "")
	postBooking(t, r, "renter-1", "")

	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotencyMiddleware_LogsFailedStore(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)

	var mr *miniredis.Miniredis
	r, mr := newIdempotencyRouterWithLogger(t, zap.New(core), func(c *gin.Context) {
		mr.SetError("READONLY You can't write against a read only replica.")
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	w := postBooking(t, r, "renter-1", "key-1")

	assert.Equal(t, http.StatusCreated, w.Code)
	entries := logs.FilterMessage("failed to store idempotent response").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "idempotency:renter-1:POST:/v1/bookings:key-1", entries[0].ContextMap()["key"])
}
