package db

import (
	"io/fs"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrationURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/crm?sslmode=disable", MigrationURL("postgres://u:p@localhost:5432/crm?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/crm", MigrationURL("postgresql://localhost/crm"))
	require.Equal(t, "pgx5://already", MigrationURL("pgx5://already"))
}

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	ups, err := fs.Glob(migrationFiles, "migrations/*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(migrationFiles, "migrations/*.down.sql")
	require.NoError(t, err)
	require.NotEmpty(t, ups)
	require.Len(t, downs, len(ups))

	body, err := fs.ReadFile(migrationFiles, "migrations/000001_crm_core.up.sql")
	require.NoError(t, err)
	require.Contains(t, string(body), "ON DELETE CASCADE")
}
