package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"ledger-core/pkg/cache"
	"ledger-core/pkg/utils/lock"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newIdempotentRouter(calls *int32, status int) *gin.Engine {
	r := gin.New()
	store := cache.NewMemoryCache(time.Minute, time.Minute)
	r.Use(Idempotency(store, lock.NewKeyedMutex(), time.Minute))
	r.POST("/deposit", func(c *gin.Context) {
		n := atomic.AddInt32(calls, 1)
		time.Sleep(10 * time.Millisecond)
		c.JSON(status, gin.H{"success": status == http.StatusOK, "call": n})
	})
	return r
}

func post(r http.Handler, key, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/deposit", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestIdempotencyReplay(t *testing.T) {
	var calls int32
	r := newIdempotentRouter(&calls, http.StatusOK)

	first := post(r, "k1", `{"amount":"1","account":0}`)
	second := post(r, "k1", `{"amount":"1","account":0}`)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, first.Body.String(), second.Body.String())
	assert.Equal(t, "true", second.Header().Get(IdempotencyReplayedHeader))
	assert.Empty(t, first.Header().Get(IdempotencyReplayedHeader))
}

func TestIdempotencyReplaysFailures(t *testing.T) {
	var calls int32
	r := newIdempotentRouter(&calls, http.StatusInternalServerError)

	post(r, "k1", `{}`)
	second := post(r, "k1", `{}`)

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, http.StatusInternalServerError, second.Code)
}

func TestIdempotencyFingerprintMismatch(t *testing.T) {
	var calls int32
	r := newIdempotentRouter(&calls, http.StatusOK)

	post(r, "k1", `{"amount":"1","account":0}`)
	w := post(r, "k1", `{"amount":"2","account":0}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestIdempotencyWithoutKey(t *testing.T) {
	var calls int32
	r := newIdempotentRouter(&calls, http.StatusOK)

	post(r, "", `{}`)
	post(r, "", `{}`)

	assert.Equal(t, int32(2), atomic.LoadInt32(&calls))
}

func TestIdempotencyConcurrentDuplicates(t *testing.T) {
	var calls int32
	r := newIdempotentRouter(&calls, http.StatusOK)

	var wg sync.WaitGroup
	bodies := make([]string, 5)
	for i := range bodies {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			bodies[i] = post(r, "same", `{"account":1}`).Body.String()
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	for _, b := range bodies {
		assert.Equal(t, bodies[0], b)
	}
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(RequestIDKey))
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, w.Header().Get(RequestIDHeader))
	assert.Equal(t, w.Header().Get(RequestIDHeader), w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
}
