package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/database"
)

const datasetColumns = `id, user_id, name, description, file_path, file_size, mime_type, format_type,
       problem_hint, metadata, is_public, original_filename, checksum, created_at, updated_at`

// DatasetRepository persists dataset rows.
type DatasetRepository struct {
	db *sqlx.DB
}

// NewDatasetRepository constructs the repository.
func NewDatasetRepository(db *sqlx.DB) *DatasetRepository {
	return &DatasetRepository{db: db}
}

// CreateAtomic inserts the dataset row and runs persist inside the same transaction.
// persist writes the blob and returns its checksum; any error rolls the row back.
func (r *DatasetRepository) CreateAtomic(ctx context.Context, dataset *models.Dataset, persist func(ctx context.Context) (string, error)) error {
	if dataset.ID == "" {
		dataset.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if dataset.CreatedAt.IsZero() {
		dataset.CreatedAt = now
	}
	dataset.UpdatedAt = dataset.CreatedAt

	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		const insert = `INSERT INTO datasets
	(id, user_id, name, description, file_path, file_size, mime_type, format_type, problem_hint, metadata, is_public, original_filename, checksum, created_at, updated_at)
	VALUES (:id, :user_id, :name, :description, :file_path, :file_size, :mime_type, :format_type, :problem_hint, :metadata, :is_public, :original_filename, :checksum, :created_at, :updated_at)`
		if _, err := tx.NamedExecContext(ctx, insert, dataset); err != nil {
			return fmt.Errorf("insert dataset: %w", err)
		}
		if persist == nil {
			return nil
		}
		checksum, err := persist(ctx)
		if err != nil {
			return err
		}
		dataset.Checksum = checksum
		if _, err := tx.ExecContext(ctx, `UPDATE datasets SET checksum = $2 WHERE id = $1`, dataset.ID, checksum); err != nil {
			return fmt.Errorf("record dataset checksum: %w", err)
		}
		return nil
	})
}

// GetByID loads one dataset.
func (r *DatasetRepository) GetByID(ctx context.Context, id string) (*models.Dataset, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, sql.ErrNoRows
	}
	query := `SELECT ` + datasetColumns + ` FROM datasets WHERE id = $1`
	var dataset models.Dataset
	if err := r.db.GetContext(ctx, &dataset, query, id); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// List returns datasets visible to the viewer, newest first, and the total match count.
func (r *DatasetRepository) List(ctx context.Context, filter models.DatasetFilter) ([]models.Dataset, int, error) {
	args := make([]interface{}, 0, 3)
	conditions := make([]string, 0, 3)

	if filter.ViewerID == "" {
		conditions = append(conditions, "is_public = TRUE")
	} else {
		args = append(args, filter.ViewerID)
		if filter.OnlyOwned {
			conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
		} else {
			conditions = append(conditions, fmt.Sprintf("(is_public = TRUE OR user_id = $%d)", len(args)))
		}
	}
	if filter.FormatType != "" {
		args = append(args, filter.FormatType)
		conditions = append(conditions, fmt.Sprintf("format_type = $%d", len(args)))
	}
	where := " WHERE " + strings.Join(conditions, " AND ")

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM datasets"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count datasets: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM datasets%s ORDER BY created_at DESC, id LIMIT %d OFFSET %d", datasetColumns, where, limit, offset)

	var records []models.Dataset
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list datasets: %w", err)
	}
	return records, total, nil
}

// ListAll returns every dataset row in creation order for batch jobs.
func (r *DatasetRepository) ListAll(ctx context.Context) ([]models.Dataset, error) {
	query := `SELECT ` + datasetColumns + ` FROM datasets ORDER BY created_at, id`
	var records []models.Dataset
	if err := r.db.SelectContext(ctx, &records, query); err != nil {
		return nil, fmt.Errorf("list all datasets: %w", err)
	}
	return records, nil
}

// Update applies patch and returns the updated row.
func (r *DatasetRepository) Update(ctx context.Context, id string, patch models.DatasetPatch, updatedAt time.Time) (*models.Dataset, error) {
	sets := []string{"updated_at = $1"}
	args := []interface{}{updatedAt}
	if patch.Description != nil {
		args = append(args, *patch.Description)
		sets = append(sets, fmt.Sprintf("description = $%d", len(args)))
	}
	if patch.IsPublic != nil {
		args = append(args, *patch.IsPublic)
		sets = append(sets, fmt.Sprintf("is_public = $%d", len(args)))
	}
	args = append(args, id)
	query := fmt.Sprintf("UPDATE datasets SET %s WHERE id = $%d RETURNING %s", strings.Join(sets, ", "), len(args), datasetColumns)

	var dataset models.Dataset
	if err := r.db.GetContext(ctx, &dataset, query, args...); err != nil {
		return nil, err
	}
	return &dataset, nil
}

// Delete removes the dataset with its ledger and compatibility rows in one transaction.
// The explicit child deletes mirror the ON DELETE CASCADE constraints.
func (r *DatasetRepository) Delete(ctx context.Context, id string) error {
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_access_logs WHERE dataset_id = $1`, id); err != nil {
			return fmt.Errorf("delete dataset access logs: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM dataset_compatibility WHERE dataset_id = $1`, id); err != nil {
			return fmt.Errorf("delete dataset compatibility: %w", err)
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM datasets WHERE id = $1`, id)
		if err != nil {
			return fmt.Errorf("delete dataset: %w", err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("check dataset delete rows: %w", err)
		}
		if affected == 0 {
			return sql.ErrNoRows
		}
		return nil
	})
}

// Ping checks database connectivity for readiness probes.
func (r *DatasetRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
