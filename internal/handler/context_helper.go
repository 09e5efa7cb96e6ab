package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/rastion/rastion-datasets/internal/middleware"
	"github.com/rastion/rastion-datasets/internal/models"
)

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	return middleware.Claims(c)
}

func requestContext(c *gin.Context) models.RequestContext {
	return models.RequestContext{
		UserAgent: c.GetHeader("User-Agent"),
		IPAddress: c.ClientIP(),
	}
}
