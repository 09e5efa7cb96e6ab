package database

import (
	"context"
	"errors"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/rastion/rastion-datasets/pkg/config"
)

func TestDSN(t *testing.T) {
	dsn := DSN(config.DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "rastion", SSLMode: "disable"})
	require.Equal(t, "host=db port=5432 user=u password=p dbname=rastion sslmode=disable", dsn)
}

func TestWithTxCommitsAndRollsBack(t *testing.T) {
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer raw.Close()
	db := sqlx.NewDb(raw, "sqlmock")

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, WithTx(context.Background(), db, func(tx *sqlx.Tx) error { return nil }))

	mock.ExpectBegin()
	mock.ExpectRollback()
	boom := errors.New("boom")
	err = WithTx(context.Background(), db, func(tx *sqlx.Tx) error { return boom })
	require.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
