package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/jafarshop/sellerhub/internal/domain"
	"github.com/jafarshop/sellerhub/internal/repository"
)

const IdempotencyKeyHeader = "Idempotency-Key"

// replayHeader marks responses served from a stored idempotency record
const replayHeader = "Idempotent-Replayed"

// bodyRecorder keeps a copy of everything the handler writes
type bodyRecorder struct {
	gin.ResponseWriter
	buf bytes.Buffer
}

func (w *bodyRecorder) Write(b []byte) (int, error) {
	w.buf.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *bodyRecorder) WriteString(s string) (int, error) {
	w.buf.WriteString(s)
	return w.ResponseWriter.WriteString(s)
}

// IdempotencyMiddleware replays the stored response of a mutating request sent
// again with the same Idempotency-Key. Must run after AuthMiddleware.
func IdempotencyMiddleware(keys repository.IdempotencyRepository, logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		// Only apply to POST/PUT/PATCH requests
		if c.Request.Method != http.MethodPost && c.Request.Method != http.MethodPut && c.Request.Method != http.MethodPatch {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}
		tenant, ok := GetTenantFromContext(c)
		if !ok {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			logger.Error("Failed to read request body for idempotency", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process request"})
			c.Abort()
			return
		}

		// Restore body for handler
		c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

		// The route is part of the hash so one key cannot span two operations
		hash := sha256.New()
		hash.Write([]byte(c.Request.Method + " " + c.Request.URL.Path + "\n"))
		hash.Write(body)
		requestHash := hex.EncodeToString(hash.Sum(nil))

		existing, err := keys.Get(c.Request.Context(), tenant.ID, idempotencyKey)
		if err != nil {
			logger.Error("Failed to check idempotency key", zap.Error(err))
			c.Next()
			return
		}

		if existing != nil {
			if existing.RequestHash != requestHash {
				c.JSON(http.StatusConflict, gin.H{
					"error": "idempotency key conflict: same key used with different payload",
				})
				c.Abort()
				return
			}
			c.Header(replayHeader, "true")
			c.Data(existing.StatusCode, "application/json; charset=utf-8", existing.Response)
			c.Abort()
			return
		}

		rec := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = rec
		c.Next()

		// Only successful outcomes are replayed; failures may be retried
		status := rec.Status()
		if status < 200 || status >= 300 {
			return
		}
		if err := keys.Create(c.Request.Context(), &domain.IdempotencyRecord{
			Key:         idempotencyKey,
			TenantID:    tenant.ID,
			RequestHash: requestHash,
			StatusCode:  status,
			Response:    rec.buf.Bytes(),
		}); err != nil {
			logger.Warn("Failed to store idempotency key", zap.Error(err))
		}
	}
}
