package handler

import (
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rastion/rastion-datasets/internal/middleware"
)

// Routes groups the handlers mounted under the API prefix.
type Routes struct {
	Datasets      *DatasetHandler
	Compatibility *CompatibilityHandler
	Metrics       *MetricsHandler
	Auth          middleware.TokenValidator
	Logger        *zap.Logger
}

// Register mounts observability endpoints at the root and dataset endpoints under prefix.
func Register(r *gin.Engine, prefix string, routes Routes) {
	if routes.Metrics != nil {
		r.GET("/health", routes.Metrics.Health)
		r.GET("/ready", routes.Metrics.Ready)
		r.GET("/metrics", routes.Metrics.Prometheus)
	}

	required := middleware.JWT(routes.Auth)
	optional := middleware.OptionalJWT(routes.Auth)
	audit := func(action string) gin.HandlerFunc { return middleware.Audit(routes.Logger, action) }

	api := r.Group(prefix)
	datasets := api.Group("/datasets")
	datasets.POST("", required, audit("dataset.create"), routes.Datasets.Create)
	datasets.GET("", optional, routes.Datasets.List)
	datasets.GET("/:id", optional, routes.Datasets.Get)
	datasets.PATCH("/:id", required, audit("dataset.update"), routes.Datasets.Update)
	datasets.DELETE("/:id", required, audit("dataset.delete"), routes.Datasets.Delete)
	datasets.GET("/:id/download", optional, routes.Datasets.Download)
	datasets.GET("/:id/access", required, routes.Datasets.AccessSummary)
	datasets.GET("/:id/compatibility", optional, routes.Compatibility.List)
	datasets.POST("/:id/compatibility/recompute", required, audit("dataset.recompute"), routes.Compatibility.Recompute)
}
