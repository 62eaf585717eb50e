package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"ledger-core/internal/handler/response"
	"ledger-core/pkg/cache"
	"ledger-core/pkg/crypto_util"
	"ledger-core/pkg/errno"
	"ledger-core/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	IdempotencyKeyHeader      = "Idempotency-Key"
	IdempotencyReplayedHeader = "Idempotent-Replayed"
)

// Locker 串行化同一 Idempotency-Key 的并发请求 (lock.KeyedMutex / lock.RedisMutex)
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// idempotencyRecord 缓存的响应
type idempotencyRecord struct {
	Fingerprint string `json:"fingerprint"`
	Status      int    `json:"status"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

type bodyWriter struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyWriter) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyWriter) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// Idempotency 对携带 Idempotency-Key 的写请求做幂等:
// 同一个 key 的第一次响应 (包括失败和超时) 会被保存，重试直接回放，不会再次广播交易。
// key 相同但请求内容不同返回 422。
func Idempotency(store cache.Cache, locker Locker, ttl time.Duration) gin.HandlerFunc {
	log := logger.Named("idempotency")

	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || c.Request.Method == http.MethodGet {
			c.Next()
			return
		}

		// 1. 计算请求指纹
		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			response.Error(c, errno.ErrBind.WithMessage("failed to read request body"))
			c.Abort()
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := crypto_util.Fingerprint([]byte(c.Request.Method), []byte(c.Request.URL.Path), body)

		// 2. 同一个 key 同时只处理一个请求
		unlock, err := locker.Lock(c.Request.Context(), "idem:"+key)
		if err != nil {
			response.Error(c, errno.InternalServerError.Wrap(err))
			c.Abort()
			return
		}
		defer unlock()

		// 3. 命中则回放
		var rec idempotencyRecord
		err = store.Get(c.Request.Context(), key, &rec)
		switch {
		case err == nil:
			if rec.Fingerprint != fingerprint {
				response.Error(c, errno.ErrIdempotencyKey)
				c.Abort()
				return
			}
			log.Info("回放已保存的响应", zap.String("key", key), zap.Int("status", rec.Status))
			c.Header(IdempotencyReplayedHeader, "true")
			c.Data(rec.Status, rec.ContentType, rec.Body)
			c.Abort()
			return
		case !errors.Is(err, cache.ErrCacheMiss):
			// 缓存不可用时不阻断业务，退化为非幂等
			log.Warn("读取幂等记录失败", zap.String("key", key), zap.Error(err))
		}

		// 4. 执行并保存响应
		w := &bodyWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		rec = idempotencyRecord{
			Fingerprint: fingerprint,
			Status:      w.Status(),
			ContentType: w.Header().Get("Content-Type"),
			Body:        w.buf.Bytes(),
		}
		// 请求可能已被取消，保存不应随之失败
		saveCtx := context.WithoutCancel(c.Request.Context())
		if err := store.Set(saveCtx, key, rec, ttl); err != nil {
			log.Error("保存幂等记录失败", zap.String("key", key), zap.Error(err))
		}
	}
}
