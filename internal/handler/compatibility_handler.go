package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/rastion/rastion-datasets/internal/dto"
	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/response"
)

type compatibilityService interface {
	List(ctx context.Context, datasetID string, actor *models.JWTClaims) ([]models.DatasetCompatibility, error)
	Recompute(ctx context.Context, datasetID string, actor *models.JWTClaims) ([]models.DatasetCompatibility, error)
}

// CompatibilityHandler exposes dataset compatibility scores.
type CompatibilityHandler struct {
	compatibility compatibilityService
}

// NewCompatibilityHandler constructs CompatibilityHandler.
func NewCompatibilityHandler(compatibility compatibilityService) *CompatibilityHandler {
	return &CompatibilityHandler{compatibility: compatibility}
}

// List godoc
// @Summary List compatibility scores
// @Tags Compatibility
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /datasets/{id}/compatibility [get]
func (h *CompatibilityHandler) List(c *gin.Context) {
	rows, err := h.compatibility.List(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompatibilityResponse{DatasetID: c.Param("id"), Items: nonNil(rows)}, nil)
}

// Recompute godoc
// @Summary Rescore a dataset against the repository catalog
// @Tags Compatibility
// @Produce json
// @Security BearerAuth
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /datasets/{id}/compatibility/recompute [post]
func (h *CompatibilityHandler) Recompute(c *gin.Context) {
	rows, err := h.compatibility.Recompute(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.CompatibilityResponse{DatasetID: c.Param("id"), Items: nonNil(rows)}, nil)
}

func nonNil(rows []models.DatasetCompatibility) []models.DatasetCompatibility {
	if rows == nil {
		return []models.DatasetCompatibility{}
	}
	return rows
}
