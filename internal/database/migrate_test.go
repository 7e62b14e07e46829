package database

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMigrateURL(t *testing.T) {
	assert.Equal(t, "pgx5://u:p@db:5432/bingo?sslmode=disable", migrateURL("postgres://u:p@db:5432/bingo?sslmode=disable"))
	assert.Equal(t, "pgx5://db/bingo", migrateURL("postgresql://db/bingo"))
	assert.Equal(t, "pgx5://db/bingo", migrateURL("pgx5://db/bingo"))
}

func TestMigrationsEmbedded(t *testing.T) {
	entries, err := migrationFS.ReadDir("migrations")
	assert.NoError(t, err)
	assert.NotEmpty(t, entries)
}
