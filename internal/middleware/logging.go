package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/logging"
	"github.com/jatlingmohithsa/crypto-time-series-analysis/internal/metrics"
)

// RequestLogger logs every request through the structured logger and counts it by route
// template and status. Either argument may be nil.
func RequestLogger(logger *logging.StandardLogger, m *metrics.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		m.ObserveHTTPRequest(c.Request.Method, c.FullPath(), status)
		if logger != nil {
			logger.LogAPIRequest(c.Request.Method, c.Request.URL.Path, status, time.Since(start), GetRequestID(c))
		}
	}
}
