package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rastion/rastion-datasets/pkg/dataformat"
)

// Dataset is an uploaded file together with its extracted metadata.
type Dataset struct {
	ID               string                `db:"id" json:"id"`
	UserID           string                `db:"user_id" json:"user_id"`
	Name             string                `db:"name" json:"name"`
	Description      string                `db:"description" json:"description"`
	FilePath         string                `db:"file_path" json:"-"`
	FileSize         int64                 `db:"file_size" json:"file_size"`
	MimeType         string                `db:"mime_type" json:"mime_type"`
	FormatType       dataformat.FormatType `db:"format_type" json:"format_type"`
	ProblemHint      *string               `db:"problem_hint" json:"problem_hint,omitempty"`
	Metadata         DatasetMetadata       `db:"metadata" json:"metadata"`
	IsPublic         bool                  `db:"is_public" json:"is_public"`
	OriginalFilename string                `db:"original_filename" json:"original_filename"`
	Checksum         string                `db:"checksum" json:"checksum"`
	CreatedAt        time.Time             `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time             `db:"updated_at" json:"updated_at"`
}

// OwnedBy reports whether userID owns the dataset.
func (d *Dataset) OwnedBy(userID string) bool {
	return d != nil && userID != "" && d.UserID == userID
}

// VisibleTo reports whether userID (empty for anonymous callers) may read the dataset.
func (d *Dataset) VisibleTo(userID string) bool {
	return d != nil && (d.IsPublic || d.OwnedBy(userID))
}

// Hint returns the effective problem hint, preferring the uploader's declaration.
func (d *Dataset) Hint() string {
	if d == nil {
		return ""
	}
	if d.ProblemHint != nil && *d.ProblemHint != "" {
		return *d.ProblemHint
	}
	return d.Metadata.ProblemHint
}

// DatasetMetadata persists extractor output as JSONB.
type DatasetMetadata struct {
	dataformat.Metadata
}

// Value marshals metadata to JSON for persistence.
func (m DatasetMetadata) Value() (driver.Value, error) {
	data, err := json.Marshal(m.Metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal dataset metadata: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the metadata struct.
func (m *DatasetMetadata) Scan(value interface{}) error {
	*m = DatasetMetadata{}
	return scanJSON(value, &m.Metadata, "dataset metadata")
}

// DatasetFilter narrows dataset listings. ViewerID empty means anonymous.
type DatasetFilter struct {
	ViewerID   string
	OnlyOwned  bool
	FormatType dataformat.FormatType
	Limit      int
	Offset     int
}

// DatasetPatch carries the fields an owner may change after upload.
type DatasetPatch struct {
	Description *string
	IsPublic    *bool
}

// Empty reports whether the patch changes nothing.
func (p DatasetPatch) Empty() bool {
	return p.Description == nil && p.IsPublic == nil
}
