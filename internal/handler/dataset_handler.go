package handler

import (
	"context"
	"errors"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/rastion/rastion-datasets/internal/dto"
	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/internal/service"
	appErrors "github.com/rastion/rastion-datasets/pkg/errors"
	"github.com/rastion/rastion-datasets/pkg/response"
)

// multipartOverhead leaves room for form fields and part headers around the file.
const multipartOverhead = 1 << 20

type datasetService interface {
	Create(ctx context.Context, req dto.CreateDatasetRequest, upload service.DatasetUpload, actor *models.JWTClaims) (*models.Dataset, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims, reqCtx models.RequestContext) (*models.Dataset, error)
	List(ctx context.Context, query dto.ListDatasetsQuery, actor *models.JWTClaims) ([]models.Dataset, int, error)
	Update(ctx context.Context, id string, req dto.UpdateDatasetRequest, actor *models.JWTClaims) (*models.Dataset, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
	Stream(ctx context.Context, id string, actor *models.JWTClaims, reqCtx models.RequestContext) (*service.DatasetDownload, error)
	Visible(ctx context.Context, id string, actor *models.JWTClaims) (*models.Dataset, error)
}

type accessSummaryService interface {
	Summary(ctx context.Context, datasetID string) (*models.AccessSummary, error)
}

// DatasetHandler exposes dataset endpoints.
type DatasetHandler struct {
	datasets    datasetService
	access      accessSummaryService
	apiPrefix   string
	maxFileSize int64
}

// NewDatasetHandler constructs DatasetHandler.
func NewDatasetHandler(datasets datasetService, access accessSummaryService, apiPrefix string, maxFileSize int64) *DatasetHandler {
	return &DatasetHandler{
		datasets:    datasets,
		access:      access,
		apiPrefix:   strings.TrimRight(apiPrefix, "/"),
		maxFileSize: maxFileSize,
	}
}

// Create godoc
// @Summary Upload dataset
// @Tags Datasets
// @Accept multipart/form-data
// @Produce json
// @Security BearerAuth
// @Param file formData file true "Dataset file"
// @Param name formData string false "Display name, defaults to the file name"
// @Param description formData string false "Description"
// @Param format_type formData string false "auto (default) keeps the sniffed format, otherwise tsplib, vrp, json, csv, txt, xml or xlsx"
// @Param problem_type formData string false "auto (default) keeps the extracted hint, otherwise a problem type such as tsp or vrp"
// @Param is_public formData bool false "Publish the dataset"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 413 {object} response.Envelope
// @Failure 415 {object} response.Envelope
// @Router /datasets [post]
func (h *DatasetHandler) Create(c *gin.Context) {
	if h.maxFileSize > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxFileSize+multipartOverhead)
	}

	var req dto.CreateDatasetRequest
	if err := c.ShouldBind(&req); err != nil {
		response.Error(c, bindError(err, "invalid upload form"))
		return
	}
	header, err := c.FormFile("file")
	if err != nil {
		response.Error(c, bindError(err, "file is required"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Internal(err, "failed to open upload"))
		return
	}
	defer file.Close()

	dataset, err := h.datasets.Create(c.Request.Context(), req, service.DatasetUpload{
		Filename: header.Filename,
		Size:     header.Size,
		Content:  file,
	}, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Location", h.datasetURL(dataset.ID))
	response.Created(c, h.present(dataset))
}

// List godoc
// @Summary List datasets
// @Tags Datasets
// @Produce json
// @Param format_type query string false "Filter by format"
// @Param mine query bool false "Only the caller's datasets"
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /datasets [get]
func (h *DatasetHandler) List(c *gin.Context) {
	var query dto.ListDatasetsQuery
	query.FormatType = strings.TrimSpace(c.Query("format_type"))
	query.Mine = c.Query("mine") == "true"
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("page_size", "20")); err == nil {
		query.PageSize = size
	}

	items, total, err := h.datasets.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	out := make([]dto.DatasetResponse, 0, len(items))
	for i := range items {
		out = append(out, h.present(&items[i]))
	}
	page := query.Page
	if page <= 0 {
		page = 1
	}
	response.JSON(c, http.StatusOK, out, &response.Pagination{Page: page, PageSize: clampPageSize(query.PageSize), TotalCount: total})
}

// Get godoc
// @Summary Get dataset metadata
// @Tags Datasets
// @Produce json
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /datasets/{id} [get]
func (h *DatasetHandler) Get(c *gin.Context) {
	dataset, err := h.datasets.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.present(dataset), nil)
}

// Update godoc
// @Summary Update dataset description or visibility
// @Tags Datasets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Dataset ID"
// @Param payload body dto.UpdateDatasetRequest true "Dataset patch"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /datasets/{id} [patch]
func (h *DatasetHandler) Update(c *gin.Context) {
	var req dto.UpdateDatasetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	dataset, err := h.datasets.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, h.present(dataset), nil)
}

// Delete godoc
// @Summary Delete dataset
// @Tags Datasets
// @Security BearerAuth
// @Param id path string true "Dataset ID"
// @Success 204
// @Failure 403 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /datasets/{id} [delete]
func (h *DatasetHandler) Delete(c *gin.Context) {
	if err := h.datasets.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Download godoc
// @Summary Download dataset content
// @Tags Datasets
// @Produce octet-stream
// @Param id path string true "Dataset ID"
// @Success 200 {file} file
// @Failure 404 {object} response.Envelope
// @Failure 429 {object} response.Envelope
// @Router /datasets/{id}/download [get]
func (h *DatasetHandler) Download(c *gin.Context) {
	download, err := h.datasets.Stream(c.Request.Context(), c.Param("id"), claimsFromContext(c), requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.Reader.Close()

	contentType := download.MimeType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	c.DataFromReader(http.StatusOK, download.Size, contentType, download.Reader, map[string]string{
		"Content-Disposition": contentDisposition(download.Filename),
		"Cache-Control":       "no-store",
	})
}

// AccessSummary godoc
// @Summary Dataset access counts
// @Tags Datasets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Dataset ID"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /datasets/{id}/access [get]
func (h *DatasetHandler) AccessSummary(c *gin.Context) {
	actor := claimsFromContext(c)
	dataset, err := h.datasets.Visible(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !dataset.OwnedBy(actor.Identity()) {
		response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "only the owner can view access counts"))
		return
	}
	summary, err := h.access.Summary(c.Request.Context(), dataset.ID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

func (h *DatasetHandler) present(dataset *models.Dataset) dto.DatasetResponse {
	return dto.DatasetResponse{Dataset: *dataset, DownloadURL: h.datasetURL(dataset.ID) + "/download"}
}

func (h *DatasetHandler) datasetURL(id string) string {
	return h.apiPrefix + "/datasets/" + id
}

func bindError(err error, message string) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return appErrors.Clone(appErrors.ErrFileTooLarge, "")
	}
	return appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message)
}

func contentDisposition(filename string) string {
	if filename == "" {
		filename = "dataset"
	}
	if value := mime.FormatMediaType("attachment", map[string]string{"filename": filename}); value != "" {
		return value
	}
	return "attachment"
}

func clampPageSize(size int) int {
	switch {
	case size <= 0:
		return 20
	case size > 100:
		return 100
	default:
		return size
	}
}
