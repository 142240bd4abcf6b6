package db

import (
	"path/filepath"
	"strings"
	"sync"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildDSN(t *testing.T) {
	tests := []struct {
		name       string
		mode       Mode
		wantTxLock bool
	}{
		{"write", ModeWrite, true},
		{"read", ModeRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dsn := buildDSN("/tmp/ledger.sqlite", tt.mode)

			assert.True(t, strings.HasPrefix(dsn, "/tmp/ledger.sqlite?"))
			assert.Contains(t, dsn, "_journal_mode=WAL")
			assert.Contains(t, dsn, "_busy_timeout=5000")
			assert.Contains(t, dsn, "_synchronous=NORMAL")
			assert.Contains(t, dsn, "_foreign_keys=on")
			if tt.wantTxLock {
				assert.Contains(t, dsn, "_txlock=immediate")
			} else {
				assert.NotContains(t, dsn, "_txlock")
			}
		})
	}
}

func TestOpenSQLite_InvalidMode(t *testing.T) {
	_, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), Mode("admin"), 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid SQLite mode")
}

func TestOpenSQLite_WritePool(t *testing.T) {
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), ModeWrite, 8)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var journal string
	require.NoError(t, db.QueryRow("PRAGMA journal_mode").Scan(&journal))
	assert.Equal(t, "wal", strings.ToLower(journal))

	var busy, fk int
	require.NoError(t, db.QueryRow("PRAGMA busy_timeout").Scan(&busy))
	require.NoError(t, db.QueryRow("PRAGMA foreign_keys").Scan(&fk))
	assert.Equal(t, 5000, busy)
	assert.Equal(t, 1, fk)

	// maxOpen is ignored for the single writer.
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}

func TestOpenSQLite_ReadPoolSize(t *testing.T) {
	tests := []struct {
		maxOpen int
		want    int
	}{
		{0, 4},
		{2, 2},
	}
	for _, tt := range tests {
		db, err := OpenSQLite(filepath.Join(t.TempDir(), "ledger.db"), ModeRead, tt.maxOpen)
		require.NoError(t, err)
		assert.Equal(t, tt.want, db.Stats().MaxOpenConnections)
		db.Close()
	}
}

func TestOpenSQLite_InvalidPath(t *testing.T) {
	_, err := OpenSQLite("/nonexistent/dir/ledger.db", ModeWrite, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping sqlite")

	_, _, err = OpenSQLitePair("/nonexistent/dir/ledger.db", 4)
	require.Error(t, err)
}

func TestOpenLedger_Migrates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	db, err := OpenLedger(path)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	version, err := SchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, int64(1), version)

	for _, table := range []string{"pipeline_runs", "task_runs"} {
		var name string
		err := db.QueryRow(`SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?`, table).Scan(&name)
		require.NoError(t, err, table)
	}

	// Re-running migrations is a no-op.
	require.NoError(t, RunMigrations(db))
}

func TestLedger_TaskRunsCascadeWithRun(t *testing.T) {
	writeDB, _ := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO pipeline_runs (id, branch, target_ref, logical_date, trigger_type)
		VALUES ('r1', 'dev_20250101', 'main', '2025-01-01', 'MANUAL')`)
	require.NoError(t, err)
	_, err = writeDB.Exec(`INSERT INTO task_runs (id, run_id, task_name) VALUES ('t1', 'r1', 'create_branch')`)
	require.NoError(t, err)

	_, err = writeDB.Exec(`INSERT INTO task_runs (id, run_id, task_name) VALUES ('t2', 'missing', 'create_branch')`)
	require.Error(t, err, "task run must reference an existing run")

	_, err = writeDB.Exec(`DELETE FROM pipeline_runs WHERE id = 'r1'`)
	require.NoError(t, err)
	var n int
	require.NoError(t, writeDB.QueryRow(`SELECT count(*) FROM task_runs`).Scan(&n))
	assert.Zero(t, n)
}

func TestOpenSQLitePair_ConcurrentReadersAndWriter(t *testing.T) {
	writeDB, readDB := OpenTestSQLite(t)

	_, err := writeDB.Exec(`INSERT INTO pipeline_runs (id, branch, target_ref, logical_date, trigger_type)
		VALUES ('r1', 'dev_20250101', 'main', '2025-01-01', 'MANUAL')`)
	require.NoError(t, err)

	var wg sync.WaitGroup
	writeErrs := make([]error, 20)
	readErrs := make([]error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(idx int) {
			defer wg.Done()
			_, writeErrs[idx] = writeDB.Exec(`UPDATE pipeline_runs SET state = 'REGISTERING' WHERE id = 'r1'`)
		}(i)
		go func(idx int) {
			defer wg.Done()
			var state string
			readErrs[idx] = readDB.QueryRow(`SELECT state FROM pipeline_runs WHERE id = 'r1'`).Scan(&state)
		}(i)
	}
	wg.Wait()

	for i := range writeErrs {
		assert.NoError(t, writeErrs[i], "writer %d", i)
		assert.NoError(t, readErrs[i], "reader %d", i)
	}
}
