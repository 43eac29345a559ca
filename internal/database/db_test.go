package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDB(t *testing.T, name string, profile DatabaseProfile) *DB {
	t.Helper()
	db, err := New(Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestBuildConnectionString_Profiles(t *testing.T) {
	ledger := buildConnectionString("/tmp/ledger.db", ProfileLedger)
	assert.Contains(t, ledger, "synchronous(FULL)")
	assert.Contains(t, ledger, "auto_vacuum(NONE)")
	assert.Contains(t, ledger, "busy_timeout(5000)")

	cache := buildConnectionString("/tmp/cache.db", ProfileCache)
	assert.Contains(t, cache, "synchronous(OFF)")

	mem := buildConnectionString("file:test?mode=memory", ProfileStandard)
	assert.Contains(t, mem, "file:test?mode=memory&_pragma=journal_mode(WAL)")
}

func TestMigrate_LedgerSchemaIsIdempotent(t *testing.T) {
	db := newTestDB(t, "ledger", ProfileLedger)

	require.NoError(t, db.Migrate())
	require.NoError(t, db.Migrate())

	var count int
	err := db.Conn().QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN ('trades', 'import_runs')`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestMigrate_UnknownNameIsNoop(t *testing.T) {
	db := newTestDB(t, "scratch", ProfileStandard)
	assert.NoError(t, db.Migrate())
}

func TestWithTransaction_RollsBackOnError(t *testing.T) {
	db := newTestDB(t, "cache", ProfileCache)
	require.NoError(t, db.Migrate())

	err := WithTransaction(db.Conn(), func(tx *sql.Tx) error {
		if _, err := tx.Exec(`INSERT INTO report_cache (cache_key, watermark, payload, created_at) VALUES ('k', 1, x'00', 0)`); err != nil {
			return err
		}
		return errors.New("boom")
	})
	require.Error(t, err)

	var count int
	require.NoError(t, db.Conn().QueryRow(`SELECT COUNT(*) FROM report_cache`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestSnapshotTo_WritesCopy(t *testing.T) {
	db := newTestDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())

	dest := filepath.Join(t.TempDir(), "snapshot.db")
	require.NoError(t, db.SnapshotTo(context.Background(), dest))

	assert.FileExists(t, dest)
	assert.Error(t, db.SnapshotTo(context.Background(), dest), "existing target must not be overwritten")
}

func TestHealthCheckAndStats(t *testing.T) {
	db := newTestDB(t, "ledger", ProfileLedger)
	require.NoError(t, db.Migrate())

	require.NoError(t, db.HealthCheck(context.Background()))

	stats, err := db.GetStats()
	require.NoError(t, err)
	assert.Greater(t, stats.PageCount, int64(0))
	assert.Greater(t, stats.PageSize, int64(0))
}
