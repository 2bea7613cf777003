package storage

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMigratedDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, ApplyMigrations(context.Background(), db))
	return db
}

func TestApplyMigrationsCreatesSchema(t *testing.T) {
	db := newMigratedDB(t)

	for _, table := range []string{"users", "analyses", "embeddings", "verification_history", "schema_version"} {
		var name string
		err := db.QueryRow(
			"SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		require.NoError(t, err, "table %s should exist", table)
	}

	var version string
	require.NoError(t, db.QueryRow(
		"SELECT version FROM schema_version ORDER BY applied_at DESC LIMIT 1").Scan(&version))
	assert.Equal(t, CurrentSchemaVersion, version)
}

func TestApplyMigrationsIsIdempotent(t *testing.T) {
	db := newMigratedDB(t)

	require.NoError(t, ApplyMigrations(context.Background(), db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM schema_version").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestLegacyUsersTableMigration(t *testing.T) {
	db, err := openDatabase(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	ctx := context.Background()

	// Old deployments required an email on every user
	_, err = db.ExecContext(ctx, `
		CREATE TABLE users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			email TEXT UNIQUE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('Old User', 'old@example.com')")
	require.NoError(t, err)

	require.NoError(t, ApplyMigrations(ctx, db))

	// Existing rows survive
	var name string
	require.NoError(t, db.QueryRow(
		"SELECT name FROM users WHERE email = 'old@example.com'").Scan(&name))
	assert.Equal(t, "Old User", name)

	// NULL emails are accepted after the migration
	_, err = db.ExecContext(ctx, "INSERT INTO users (name, email) VALUES ('No Email', NULL)")
	require.NoError(t, err)

	// Email uniqueness is still enforced
	_, err = db.ExecContext(ctx,
		"INSERT INTO users (name, email) VALUES ('Dup', 'old@example.com')")
	assert.Error(t, err)
}

func TestLegacyMigrationSkippedOnFreshSchema(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	// Running again against the already-migrated schema must not touch data
	_, err := db.ExecContext(ctx, "INSERT INTO users (name, email) VALUES ('Fresh', NULL)")
	require.NoError(t, err)
	require.NoError(t, ApplyMigrations(ctx, db))

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM users").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestRollbackMigration(t *testing.T) {
	db := newMigratedDB(t)
	ctx := context.Background()

	require.NoError(t, RollbackMigration(ctx, db))

	var name string
	err := db.QueryRow(
		"SELECT name FROM sqlite_master WHERE type='table' AND name='analyses'").Scan(&name)
	assert.ErrorIs(t, err, sql.ErrNoRows)
}
