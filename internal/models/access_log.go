package models

import "time"

// AccessType enumerates ledger event kinds.
type AccessType string

const (
	AccessTypeDownload AccessType = "download"
	AccessTypeView     AccessType = "view"
	AccessTypeMetadata AccessType = "metadata"
)

// AccessTypes lists every ledger event kind.
var AccessTypes = []AccessType{AccessTypeDownload, AccessTypeView, AccessTypeMetadata}

// DatasetAccessLog is one append-only ledger row.
type DatasetAccessLog struct {
	ID               string     `db:"id" json:"id"`
	DatasetID        string     `db:"dataset_id" json:"dataset_id"`
	AccessedByUserID *string    `db:"accessed_by_user_id" json:"accessed_by_user_id,omitempty"`
	AccessType       AccessType `db:"access_type" json:"access_type"`
	UserAgent        string     `db:"user_agent" json:"user_agent"`
	IPAddress        string     `db:"ip_address" json:"ip_address"`
	AccessedAt       time.Time  `db:"accessed_at" json:"accessed_at"`
}

// RequestContext describes the caller of a dataset read.
type RequestContext struct {
	UserAgent string
	IPAddress string
}

// AccessSummary aggregates ledger rows for one dataset.
type AccessSummary struct {
	DatasetID string               `json:"dataset_id"`
	Total     int64                `json:"total"`
	ByType    map[AccessType]int64 `json:"by_type"`
	Recent    []DatasetAccessLog   `json:"recent"`
}

// AccessTypeCount is a grouped ledger count row.
type AccessTypeCount struct {
	AccessType AccessType `db:"access_type"`
	Count      int64      `db:"count"`
}
