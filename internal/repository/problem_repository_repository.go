package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/rastion/rastion-datasets/internal/models"
)

// ProblemRepositoryRepository mirrors the repository catalog in PostgreSQL.
type ProblemRepositoryRepository struct {
	db *sqlx.DB
}

// NewProblemRepositoryRepository constructs the repository.
func NewProblemRepositoryRepository(db *sqlx.DB) *ProblemRepositoryRepository {
	return &ProblemRepositoryRepository{db: db}
}

// Upsert stores or refreshes a catalog entry.
func (r *ProblemRepositoryRepository) Upsert(ctx context.Context, repo *models.ProblemRepository) error {
	if repo.CreatedBy == "" {
		repo.CreatedBy = models.SystemUserID
	}
	if repo.UpdatedAt.IsZero() {
		repo.UpdatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO problem_repositories
	(owner, name, problem_type, declared_schema, source, created_by, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (owner, name) DO UPDATE SET
		problem_type = EXCLUDED.problem_type,
		declared_schema = EXCLUDED.declared_schema,
		source = EXCLUDED.source,
		updated_at = EXCLUDED.updated_at`
	if _, err := r.db.ExecContext(ctx, query,
		repo.Owner, repo.Name, repo.ProblemType, repo.DeclaredSchema, repo.Source, repo.CreatedBy, repo.UpdatedAt,
	); err != nil {
		return fmt.Errorf("upsert problem repository %s: %w", repo.FullName(), err)
	}
	return nil
}

// List returns every mirrored catalog entry.
func (r *ProblemRepositoryRepository) List(ctx context.Context) ([]models.ProblemRepository, error) {
	const query = `SELECT owner, name, problem_type, declared_schema, source, created_by, updated_at
	FROM problem_repositories ORDER BY owner, name`
	var rows []models.ProblemRepository
	if err := r.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, fmt.Errorf("list problem repositories: %w", err)
	}
	return rows, nil
}
