package sqlite

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/mtgate/internal/shared/infrastructure/database"
)

func TestOpen_CreatesDirectory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "mtgate.db")

	conn, err := Open(ctx, database.Config{Driver: database.DriverSQLite, SQLitePath: path})
	require.NoError(t, err)
	defer conn.Close()

	assert.NoError(t, conn.Ping(ctx))
	assert.Equal(t, database.DriverSQLite, conn.Driver())
	assert.FileExists(t, path)
}

func TestOpen_ThroughFactory(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mtgate.db")

	conn, err := database.Open(ctx, database.Config{URL: "sqlite://" + path})
	require.NoError(t, err)
	defer conn.Close()

	sqliteConn, ok := conn.(*Connection)
	require.True(t, ok)

	db := sqliteConn.DB()
	_, err = db.ExecContext(ctx, `CREATE TABLE t (id INTEGER PRIMARY KEY, name TEXT)`)
	require.NoError(t, err)
	_, err = db.ExecContext(ctx, `INSERT INTO t (id, name) VALUES (?, ?)`, 1, "alice")
	require.NoError(t, err)

	var name string
	require.NoError(t, db.QueryRowContext(ctx, `SELECT name FROM t WHERE id = ?`, 1).Scan(&name))
	assert.Equal(t, "alice", name)

	var mode string
	require.NoError(t, db.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestDSN(t *testing.T) {
	assert.Equal(t, "/a.db?"+pragmas, DSN("/a.db"))
	assert.Equal(t, "/a.db?cache=shared&"+pragmas, DSN("/a.db?cache=shared"))
}
