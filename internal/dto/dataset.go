package dto

import "github.com/rastion/rastion-datasets/internal/models"

// CreateDatasetRequest contains metadata submitted alongside a dataset upload.
// An empty FormatType keeps the sniffed format.
type CreateDatasetRequest struct {
	Name        string `form:"name" json:"name" validate:"omitempty,max=255"`
	Description string `form:"description" json:"description" validate:"max=4000"`
	FormatType  string `form:"format_type" json:"format_type"`
	ProblemType string `form:"problem_type" json:"problem_type" validate:"omitempty,max=64"`
	IsPublic    bool   `form:"is_public" json:"is_public"`
}

// UpdateDatasetRequest patches mutable dataset fields.
type UpdateDatasetRequest struct {
	Description *string `json:"description" validate:"omitempty,max=4000"`
	IsPublic    *bool   `json:"is_public"`
}

// ListDatasetsQuery captures listing query parameters.
type ListDatasetsQuery struct {
	FormatType string `form:"format_type"`
	Mine       bool   `form:"mine"`
	Page       int    `form:"page"`
	PageSize   int    `form:"page_size"`
}

// DatasetResponse is the public view of a dataset.
type DatasetResponse struct {
	models.Dataset
	DownloadURL string `json:"download_url"`
}

// CompatibilityResponse lists the scores of one dataset.
type CompatibilityResponse struct {
	DatasetID string                        `json:"dataset_id"`
	Items     []models.DatasetCompatibility `json:"items"`
}

// RecomputeSummary reports a batch rescoring run.
type RecomputeSummary struct {
	Datasets     int    `json:"datasets"`
	Repositories int    `json:"repositories"`
	Pairs        int    `json:"pairs"`
	Failed       int    `json:"failed"`
	Duration     string `json:"duration"`
}
