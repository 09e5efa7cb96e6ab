package database

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, entry := range entries {
		name := entry.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		}
	}
	require.NotEmpty(t, ups)
	require.Equal(t, ups, downs)
}

func TestLatestEmbeddedVersion(t *testing.T) {
	src, err := iofs.New(migrationFiles, "migrations")
	require.NoError(t, err)
	defer src.Close()

	latest, err := latestVersion(src)
	require.NoError(t, err)
	require.Equal(t, uint(5), latest)
}

func TestCompatibilityMigrationDeclaresUpsertKey(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/000003_create_dataset_compatibility.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(raw), "UNIQUE (dataset_id, repository_owner, repository_name)")
	require.Contains(t, string(raw), "ON DELETE CASCADE")
}

func TestDatasetsMigrationHasNoUserForeignKey(t *testing.T) {
	raw, err := fs.ReadFile(migrationFiles, "migrations/000001_create_datasets.up.sql")
	require.NoError(t, err)
	require.NotContains(t, string(raw), "REFERENCES users")
}
