package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rastion/rastion-datasets/internal/models"
)

// AccessLogRepository appends and aggregates dataset ledger rows.
type AccessLogRepository struct {
	db *sqlx.DB
}

// NewAccessLogRepository constructs the repository.
func NewAccessLogRepository(db *sqlx.DB) *AccessLogRepository {
	return &AccessLogRepository{db: db}
}

// Create appends one ledger row.
func (r *AccessLogRepository) Create(ctx context.Context, entry *models.DatasetAccessLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.AccessedAt.IsZero() {
		entry.AccessedAt = time.Now().UTC()
	}
	const query = `INSERT INTO dataset_access_logs
	(id, dataset_id, accessed_by_user_id, access_type, user_agent, ip_address, accessed_at)
	VALUES (:id, :dataset_id, :accessed_by_user_id, :access_type, :user_agent, :ip_address, :accessed_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create dataset access log: %w", err)
	}
	return nil
}

// CountByDataset returns the number of ledger rows for a dataset.
func (r *AccessLogRepository) CountByDataset(ctx context.Context, datasetID string) (int64, error) {
	var count int64
	if err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM dataset_access_logs WHERE dataset_id = $1`, datasetID); err != nil {
		return 0, fmt.Errorf("count dataset access logs: %w", err)
	}
	return count, nil
}

// CountByType groups ledger rows for a dataset by access type.
func (r *AccessLogRepository) CountByType(ctx context.Context, datasetID string) ([]models.AccessTypeCount, error) {
	const query = `SELECT access_type, COUNT(*) AS count FROM dataset_access_logs
	WHERE dataset_id = $1 GROUP BY access_type ORDER BY access_type`
	var rows []models.AccessTypeCount
	if err := r.db.SelectContext(ctx, &rows, query, datasetID); err != nil {
		return nil, fmt.Errorf("group dataset access logs: %w", err)
	}
	return rows, nil
}

// ListRecent returns the latest ledger rows for a dataset, newest first.
func (r *AccessLogRepository) ListRecent(ctx context.Context, datasetID string, limit int) ([]models.DatasetAccessLog, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	const query = `SELECT id, dataset_id, accessed_by_user_id, access_type, user_agent, ip_address, accessed_at
	FROM dataset_access_logs WHERE dataset_id = $1 ORDER BY accessed_at DESC, id LIMIT $2`
	var rows []models.DatasetAccessLog
	if err := r.db.SelectContext(ctx, &rows, query, datasetID, limit); err != nil {
		return nil, fmt.Errorf("list dataset access logs: %w", err)
	}
	return rows, nil
}
