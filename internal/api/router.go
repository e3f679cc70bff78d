package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// NewRouter wires the report routes. metricsHandler may be nil.
func NewRouter(reports *ReportHandler, recorder MetricsRecorder, metricsHandler http.Handler, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.Use(gin.Recovery(), LoggingMiddleware(logger))
	if recorder != nil {
		router.Use(MetricsMiddleware(recorder))
	}

	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if metricsHandler != nil {
		router.GET("/metrics", gin.WrapH(metricsHandler))
	}

	v1 := router.Group("/api/v1")
	v1.POST("/reports", reports.HandleSubmit)
	v1.GET("/reports", reports.HandleList)
	v1.GET("/reports/:id", reports.HandleGet)
	return router
}
