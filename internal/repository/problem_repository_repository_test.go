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

func TestProblemRepositoryRepositoryUpsertDefaultsToSystem(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProblemRepositoryRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("ON CONFLICT (owner, name) DO UPDATE SET")).
		WithArgs("rastion", "tsp-problem", "tsp", sqlmock.AnyArg(), models.ProblemSourceFile, models.SystemUserID, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	entry := &models.ProblemRepository{
		Owner:          "rastion",
		Name:           "tsp-problem",
		ProblemType:    "tsp",
		DeclaredSchema: models.DeclaredSchema{Schema: &scoring.Schema{Type: "problem", ProblemName: "tsp"}},
		Source:         models.ProblemSourceFile,
	}
	require.NoError(t, repo.Upsert(context.Background(), entry))
	require.Equal(t, models.SystemUserID, entry.CreatedBy)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestProblemRepositoryRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewProblemRepositoryRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM problem_repositories ORDER BY owner, name")).
		WillReturnRows(sqlmock.NewRows([]string{"owner", "name", "problem_type", "declared_schema", "source", "created_by", "updated_at"}).
			AddRow("rastion", "maxcut", "maxcut", nil, "gitea", "system", time.Now()).
			AddRow("rastion", "tsp-problem", "tsp", []byte(`{"type":"problem","problem_name":"tsp"}`), "file", "system", time.Now()))

	items, err := repo.List(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	require.Nil(t, items[0].DeclaredSchema.Schema)
	require.True(t, items[1].DeclaredSchema.Schema.IsProblem())
	require.NoError(t, mock.ExpectationsWereMet())
}
