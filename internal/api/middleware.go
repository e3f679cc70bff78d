package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type MetricsRecorder interface {
	RecordRequest(endpoint, method, status string)
	RecordRequestDuration(endpoint, status string, duration time.Duration)
}

func MetricsMiddleware(metrics MetricsRecorder) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}

		c.Next()

		status := getStatusLabel(c.Writer.Status())
		metrics.RecordRequest(endpoint, c.Request.Method, status)
		metrics.RecordRequestDuration(endpoint, status, time.Since(start))
	}
}

func LoggingMiddleware(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request served",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}

func getStatusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "unknown"
}
