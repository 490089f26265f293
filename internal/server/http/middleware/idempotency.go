package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"

	"github.com/prasadamconnect/engine/internal/domain"
	"github.com/prasadamconnect/engine/internal/server/http/dto"
)

// IdempotencyKeyHeader — заголовок с клиентским ключом идемпотентности.
const IdempotencyKeyHeader = "Idempotency-Key"

const idempotencyTTL = 24 * time.Hour

// bodyRecorder дублирует ответ в буфер для сохранения в idempotency-записи.
type bodyRecorder struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (r *bodyRecorder) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

// Idempotency перехватывает мутации с заголовком Idempotency-Key: первый
// запрос выполняется и его ответ сохраняется, повтор с тем же ключом и тем
// же телом получает сохранённый ответ без повторной мутации.
func Idempotency(repo domain.IdempotencyRepository, logger *log.Entry) gin.HandlerFunc {
	if logger == nil {
		logger = log.WithField("component", "idempotency-middleware")
	}
	return func(c *gin.Context) {
		key := c.GetHeader(IdempotencyKeyHeader)
		if key == "" || repo == nil {
			c.Next()
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, dto.ErrorResponse{
				Error:   "bad_request",
				Message: "failed to read request body",
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(body))
		requestHash := hashRequest(c.Request.Method, c.Request.URL.Path, body)

		ctx := c.Request.Context()
		record, err := repo.CreateProcessing(ctx, key, requestHash, time.Now().UTC().Add(idempotencyTTL))
		if errors.Is(err, domain.ErrIdempotencyKeyAlreadyExists) {
			replay(c, record, requestHash)
			return
		}
		if err != nil {
			logger.WithError(err).Warn("failed to register idempotency key")
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, dto.ErrorResponse{
				Error:   "unavailable",
				Message: "idempotency storage is unavailable",
			})
			return
		}

		recorder := &bodyRecorder{ResponseWriter: c.Writer}
		c.Writer = recorder
		c.Next()

		status := recorder.Status()
		responseBody := recorder.body.Bytes()
		// Финализация идёт на отвязанном контексте: обрыв клиента не
		// должен оставить запись в processing до истечения TTL.
		finalizeCtx := context.WithoutCancel(ctx)
		if status >= 200 && status < 300 {
			err = repo.MarkDone(finalizeCtx, key, responseBody, status)
		} else {
			err = repo.MarkFailed(finalizeCtx, key, responseBody, status)
		}
		if err != nil {
			logger.WithError(err).WithField("key", key).Warn("failed to finalize idempotency record")
		}
	}
}

func replay(c *gin.Context, record domain.IdempotencyRecord, requestHash string) {
	if record.RequestHash != requestHash {
		c.AbortWithStatusJSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "idempotency_mismatch",
			Message: domain.ErrIdempotencyHashMismatch.Error(),
		})
		return
	}
	if record.Status == domain.IdempotencyStatusProcessing {
		c.AbortWithStatusJSON(http.StatusConflict, dto.ErrorResponse{
			Error:   "idempotency_in_progress",
			Message: "original request is still being processed",
		})
		return
	}

	c.Abort()
	c.Data(record.HTTPStatus, "application/json", record.ResponseBody)
}

func hashRequest(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}
