package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rastion/rastion-datasets/internal/models"
)

// CompatibilityRepository stores dataset compatibility scores.
type CompatibilityRepository struct {
	db *sqlx.DB
}

// NewCompatibilityRepository constructs the repository.
func NewCompatibilityRepository(db *sqlx.DB) *CompatibilityRepository {
	return &CompatibilityRepository{db: db}
}

// Upsert inserts or refreshes the row keyed by (dataset, owner, name) in a single statement.
// computed_at always advances, even when the score is unchanged.
func (r *CompatibilityRepository) Upsert(ctx context.Context, row *models.DatasetCompatibility) error {
	if row.ID == "" {
		row.ID = uuid.NewString()
	}
	if row.ComputedAt.IsZero() {
		row.ComputedAt = time.Now().UTC()
	}
	const query = `INSERT INTO dataset_compatibility
	(id, dataset_id, problem_type, repository_owner, repository_name, compatibility_score, compatibility_details, computed_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (dataset_id, repository_owner, repository_name) DO UPDATE SET
		problem_type = EXCLUDED.problem_type,
		compatibility_score = EXCLUDED.compatibility_score,
		compatibility_details = EXCLUDED.compatibility_details,
		computed_at = EXCLUDED.computed_at
	RETURNING id`
	var id string
	err := r.db.QueryRowxContext(ctx, query,
		row.ID, row.DatasetID, row.ProblemType, row.RepositoryOwner, row.RepositoryName,
		row.CompatibilityScore, row.CompatibilityDetails, row.ComputedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("upsert dataset compatibility: %w", err)
	}
	row.ID = id
	return nil
}

// ListByDataset returns rows ordered by score, best first.
func (r *CompatibilityRepository) ListByDataset(ctx context.Context, datasetID string) ([]models.DatasetCompatibility, error) {
	const query = `SELECT id, dataset_id, problem_type, repository_owner, repository_name, compatibility_score, compatibility_details, computed_at
	FROM dataset_compatibility WHERE dataset_id = $1
	ORDER BY compatibility_score DESC, repository_owner, repository_name`
	var rows []models.DatasetCompatibility
	if err := r.db.SelectContext(ctx, &rows, query, datasetID); err != nil {
		return nil, fmt.Errorf("list dataset compatibility: %w", err)
	}
	return rows, nil
}
