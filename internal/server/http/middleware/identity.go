// Package middleware содержит gin-middleware HTTP-слоя: идентификация
// вызывающего, логирование, метрики и idempotency-key.
package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/server/http/dto"
)

// UIDContextKey — ключ gin-контекста с uid вызывающего.
const UIDContextKey = "caller_uid"

// uidHeader несёт uid, проверенный провайдером аутентификации выше по
// стеку. Движок доверяет этому значению.
const uidHeader = "X-User-UID"

// IdentityRequired требует заголовок X-User-UID и кладёт uid в контекст.
func IdentityRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		uid := c.GetHeader(uidHeader)
		if uid == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, dto.ErrorResponse{
				Error:   "unauthenticated",
				Message: "missing " + uidHeader + " header",
			})
			return
		}
		c.Set(UIDContextKey, uid)
		c.Next()
	}
}

// CallerUID возвращает uid из контекста запроса.
func CallerUID(c *gin.Context) string {
	val, ok := c.Get(UIDContextKey)
	if !ok {
		return ""
	}
	uid, _ := val.(string)
	return uid
}
