package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/prasadamconnect/engine/internal/metrics"
)

// HTTPMetrics собирает длительности и счётчик запросов в полёте.
// Для label path берётся шаблон маршрута, а не сырой URL.
func HTTPMetrics(em *metrics.EngineMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if em == nil {
			c.Next()
			return
		}

		start := time.Now()
		em.HTTPInFlightStarted()
		defer em.HTTPInFlightFinished()

		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		em.RecordHTTPRequest(c.Request.Method, path, strconv.Itoa(c.Writer.Status()), time.Since(start))
	}
}
