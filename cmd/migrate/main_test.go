package main

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wamirror/internal/models"
)

func TestRun_SQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mirror.db")
	cfg := models.StoreConfig{Driver: "sqlite", Path: path}

	require.NoError(t, run(context.Background(), cfg, false))
	require.NoError(t, run(context.Background(), cfg, false))

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_migrations").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestTarget(t *testing.T) {
	dialect, driver, dsn, err := target(models.StoreConfig{Driver: "postgres", DSN: "postgres://localhost/wamirror"})
	require.NoError(t, err)
	assert.Equal(t, "postgres", dialect)
	assert.Equal(t, "postgres", driver)
	assert.Equal(t, "postgres://localhost/wamirror", dsn)

	_, _, _, err = target(models.StoreConfig{Driver: "mongo"})
	assert.Error(t, err)

	_, _, _, err = target(models.StoreConfig{Driver: "sqlite", Path: "../escape.db"})
	assert.Error(t, err)
}

func TestRun_List(t *testing.T) {
	assert.NoError(t, run(context.Background(), models.StoreConfig{Driver: "postgres"}, true))
}
