package models

import "time"

// HealthStatus is the reconciler verdict for one dataset.
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
)

// DatasetHealth is the per-dataset reconciler result.
type DatasetHealth struct {
	DatasetID    string       `json:"dataset_id"`
	Name         string       `json:"name"`
	UserID       string       `json:"user_id"`
	FilePath     string       `json:"file_path"`
	RecordedSize int64        `json:"recorded_size"`
	ActualSize   *int64       `json:"actual_size,omitempty"`
	Status       HealthStatus `json:"status"`
	Reasons      []string     `json:"reasons"`
}

// HealthReport summarises one reconciler run.
type HealthReport struct {
	CheckedAt time.Time       `json:"checked_at"`
	Duration  string          `json:"duration"`
	Total     int             `json:"total"`
	Healthy   int             `json:"healthy"`
	Unhealthy int             `json:"unhealthy"`
	Results   []DatasetHealth `json:"results"`
	Orphans   []string        `json:"orphans"`
}
