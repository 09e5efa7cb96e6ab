package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/internal/models"
	"github.com/rastion/rastion-datasets/pkg/scoring"
)

const upsertPattern = "ON CONFLICT (dataset_id, repository_owner, repository_name) DO UPDATE SET"

func TestCompatibilityRepositoryUpsertKeepsExistingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompatibilityRepository(db)

	first := &models.DatasetCompatibility{
		DatasetID:            "ds-1",
		ProblemType:          "tsp",
		RepositoryOwner:      "rastion",
		RepositoryName:       "tsp-problem",
		CompatibilityScore:   0.7,
		CompatibilityDetails: models.CompatibilityDetails{Detail: scoring.Detail{Version: 1}},
	}
	mock.ExpectQuery(regexp.QuoteMeta(upsertPattern)).
		WithArgs(sqlmock.AnyArg(), "ds-1", "tsp", "rastion", "tsp-problem", 0.7, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("row-1"))
	require.NoError(t, repo.Upsert(context.Background(), first))
	require.Equal(t, "row-1", first.ID)

	second := *first
	second.ID = ""
	second.ComputedAt = time.Time{}
	mock.ExpectQuery(regexp.QuoteMeta(upsertPattern)).
		WithArgs(sqlmock.AnyArg(), "ds-1", "tsp", "rastion", "tsp-problem", 0.7, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("row-1"))
	require.NoError(t, repo.Upsert(context.Background(), &second))
	require.Equal(t, "row-1", second.ID, "the conflicting row is updated, not duplicated")
	require.False(t, second.ComputedAt.IsZero())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCompatibilityRepositoryListByDatasetOrdersByScore(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewCompatibilityRepository(db)

	rows := sqlmock.NewRows([]string{"id", "dataset_id", "problem_type", "repository_owner", "repository_name", "compatibility_score", "compatibility_details", "computed_at"}).
		AddRow("row-1", "ds-1", "tsp", "rastion", "tsp-problem", []byte("0.70"), []byte(`{"version":1,"matched_problem_type":true,"reasons":["ok"]}`), time.Now()).
		AddRow("row-2", "ds-1", "vrp", "rastion", "vrp-problem", []byte("0.00"), []byte(`{"version":1,"reasons":["no declared schema"]}`), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY compatibility_score DESC")).
		WithArgs("ds-1").
		WillReturnRows(rows)

	items, err := repo.ListByDataset(context.Background(), "ds-1")
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Equal(t, 0.7, items[0].CompatibilityScore)
	require.True(t, items[0].CompatibilityDetails.MatchedProblemType)
	require.Equal(t, []string{"no declared schema"}, items[1].CompatibilityDetails.Reasons)
	require.NoError(t, mock.ExpectationsWereMet())
}
