package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rastion/rastion-datasets/pkg/scoring"
)

// SystemUserID marks platform-generated records.
const SystemUserID = "system"

// Catalog sources.
const (
	ProblemSourceFile  = "file"
	ProblemSourceGitea = "gitea"
)

// ProblemRepository is a problem repository known to the catalog and its declared schema.
type ProblemRepository struct {
	Owner          string         `db:"owner" json:"owner" yaml:"owner"`
	Name           string         `db:"name" json:"name" yaml:"name"`
	ProblemType    string         `db:"problem_type" json:"problem_type" yaml:"problem_type"`
	DeclaredSchema DeclaredSchema `db:"declared_schema" json:"declared_schema" yaml:"-"`
	Source         string         `db:"source" json:"source" yaml:"-"`
	CreatedBy      string         `db:"created_by" json:"created_by" yaml:"-"`
	UpdatedAt      time.Time      `db:"updated_at" json:"updated_at" yaml:"-"`
}

// FullName returns owner/name.
func (p ProblemRepository) FullName() string {
	return p.Owner + "/" + p.Name
}

// DeclaredSchema wraps an optional problem_config. A nil Schema persists as SQL NULL.
type DeclaredSchema struct {
	Schema *scoring.Schema
}

// MarshalJSON renders the schema or null.
func (d DeclaredSchema) MarshalJSON() ([]byte, error) {
	if d.Schema == nil {
		return []byte("null"), nil
	}
	return json.Marshal(d.Schema)
}

// UnmarshalJSON keeps malformed schemas as nil so they score zero instead of failing.
func (d *DeclaredSchema) UnmarshalJSON(data []byte) error {
	d.Schema = nil
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	schema, err := scoring.ParseSchema(data)
	if err != nil {
		return nil
	}
	d.Schema = schema
	return nil
}

// Value marshals the schema for persistence.
func (d DeclaredSchema) Value() (driver.Value, error) {
	if d.Schema == nil {
		return nil, nil
	}
	data, err := json.Marshal(d.Schema)
	if err != nil {
		return nil, fmt.Errorf("marshal declared schema: %w", err)
	}
	return data, nil
}

// Scan unmarshals JSON payloads into the schema.
func (d *DeclaredSchema) Scan(value interface{}) error {
	d.Schema = nil
	var raw json.RawMessage
	if err := scanJSON(value, &raw, "declared schema"); err != nil {
		return err
	}
	return d.UnmarshalJSON(raw)
}
