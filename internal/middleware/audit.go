package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/pkg/middleware/requestid"
)

// Audit logs an audit event after successful mutating requests.
func Audit(logger *zap.Logger, action string) gin.HandlerFunc {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(c *gin.Context) {
		start := time.Now().UTC()
		c.Next()

		if c.Writer.Status() >= 400 {
			return
		}

		actor := ""
		if claims := Claims(c); claims != nil {
			actor = claims.Identity()
		}
		logger.Info("audit",
			zap.String("action", action),
			zap.String("actor", actor),
			zap.String("resource_id", c.Param("id")),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.String("ip", c.ClientIP()),
			zap.String("request_id", requestid.Value(c)),
			zap.Int64("latency_ms", time.Since(start).Milliseconds()),
		)
	}
}
