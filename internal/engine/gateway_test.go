package engine

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lake-wap/internal/domain"
)

// openMemory returns a pool where every physical connection is its own
// private in-memory database, so state visible across statements proves they
// shared a connection.
func openMemory(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestGateway_Execute_SharesConnectionWithinCall(t *testing.T) {
	gw := NewGateway(openMemory(t))

	err := gw.Execute(context.Background(),
		"CREATE TEMP TABLE session_ref (name TEXT)",
		"INSERT INTO session_ref VALUES ('dev_20250101')",
		"SELECT name FROM session_ref",
	)
	require.NoError(t, err)
}

func TestGateway_Execute_NoReuseAcrossCalls(t *testing.T) {
	gw := NewGateway(openMemory(t))
	ctx := context.Background()

	require.NoError(t, gw.Execute(ctx, "CREATE TEMP TABLE session_ref (name TEXT)"))

	err := gw.Execute(ctx, "INSERT INTO session_ref VALUES ('dev_20250101')")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no such table")
}

func TestGateway_Execute_NoRollbackOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.sqlite")
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	gw := NewGateway(db)
	err = gw.Execute(context.Background(),
		"CREATE TABLE clima (a INT)",
		"INSERT INTO clima VALUES (1)",
		"INSERT INTO missing_table VALUES (1)",
		"INSERT INTO clima VALUES (2)",
	)
	require.Error(t, err)

	var stmtErr *domain.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 2, stmtErr.Index)
	assert.Equal(t, "INSERT INTO missing_table VALUES (1)", stmtErr.Statement)
	assert.Contains(t, stmtErr.Error(), "statement 3 failed")

	var n int
	require.NoError(t, db.QueryRow("SELECT count(*) FROM clima").Scan(&n))
	assert.Equal(t, 1, n, "statements before the failure stay applied and later ones never run")
}

func TestGateway_Execute_Empty(t *testing.T) {
	gw := NewGateway(openMemory(t))

	err := gw.Execute(context.Background())
	require.Error(t, err)
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestGateway_Execute_CancelledContext(t *testing.T) {
	gw := NewGateway(openMemory(t), WithStatementTimeout(time.Second))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := gw.Execute(ctx, "SELECT 1")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestGateway_WithSession_IndexesAcrossExecs(t *testing.T) {
	gw := NewGateway(openMemory(t))

	err := gw.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		if err := s.Exec(ctx, "CREATE TEMP TABLE t (x INT)"); err != nil {
			return err
		}
		return s.Exec(ctx, "SELECT nope FROM t")
	})
	var stmtErr *domain.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 1, stmtErr.Index)
}
