package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rastion/rastion-datasets/pkg/scoring"
)

// DatasetCompatibility is the persisted score of one dataset against one problem repository.
type DatasetCompatibility struct {
	ID                   string               `db:"id" json:"id"`
	DatasetID            string               `db:"dataset_id" json:"dataset_id"`
	ProblemType          string               `db:"problem_type" json:"problem_type"`
	RepositoryOwner      string               `db:"repository_owner" json:"repository_owner"`
	RepositoryName       string               `db:"repository_name" json:"repository_name"`
	CompatibilityScore   float64              `db:"compatibility_score" json:"compatibility_score"`
	CompatibilityDetails CompatibilityDetails `db:"compatibility_details" json:"compatibility_details"`
	ComputedAt           time.Time            `db:"computed_at" json:"computed_at"`
}

// CompatibilityDetails persists the scorer explanation as JSONB.
type CompatibilityDetails struct {
	scoring.Detail
}

// Value marshals details to JSON for persistence.
func (d CompatibilityDetails) Value() (driver.Value, error) {
	detail := d.Detail
	if detail.MatchedParameters == nil {
		detail.MatchedParameters = []scoring.ParameterMatch{}
	}
	if detail.Reasons == nil {
		detail.Reasons = []string{}
	}
	data, err := json.Marshal(detail)
	if err != nil {
		return nil, fmt.Errorf("marshal compatibility details: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the details struct.
func (d *CompatibilityDetails) Scan(value interface{}) error {
	*d = CompatibilityDetails{}
	return scanJSON(value, &d.Detail, "compatibility details")
}
