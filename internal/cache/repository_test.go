package cache

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	testingpkg "github.com/aristath/tunefolio/internal/testing"
)

func newTestRepo(t *testing.T) *ReportRepository {
	db, cleanup := testingpkg.NewTestDB(t, "cache")
	t.Cleanup(cleanup)
	return NewReportRepository(db.Conn(), zerolog.Nop())
}

func sampleReport() *pnl.Report {
	return &pnl.Report{
		Window:           fiscal.Window{Start: "2024-04-01", End: "2025-03-31"},
		TotalRealisedPnL: testingpkg.D("649.99"),
		BySymbol: map[string]pnl.SymbolPnL{
			"INFY": {RealisedPnL: testingpkg.D("650.12"), QtySold: testingpkg.D("15.5"), UnmatchedQty: testingpkg.D("0")},
			"TCS":  {RealisedPnL: testingpkg.D("-0.13"), QtySold: testingpkg.D("1"), UnmatchedQty: testingpkg.D("0.25")},
		},
		TotalSymbolsSold: 2,
		TotalSells:       3,
	}
}

func TestReportRepository_PutGet(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, ok := repo.Get(ctx, "pnl:a", 5)
	assert.False(t, ok)

	require.NoError(t, repo.Put(ctx, "pnl:a", 5, sampleReport()))

	got, ok := repo.Get(ctx, "pnl:a", 5)
	require.True(t, ok)
	assert.Equal(t, "2024-04-01", got.Window.Start)
	assert.Equal(t, "2025-03-31", got.Window.End)
	assert.True(t, got.TotalRealisedPnL.Equal(testingpkg.D("649.99")))
	assert.Equal(t, 2, got.TotalSymbolsSold)
	assert.Equal(t, 3, got.TotalSells)
	require.Len(t, got.BySymbol, 2)
	assert.True(t, got.BySymbol["INFY"].QtySold.Equal(testingpkg.D("15.5")))
	assert.True(t, got.BySymbol["TCS"].RealisedPnL.Equal(testingpkg.D("-0.13")))
	assert.True(t, got.BySymbol["TCS"].UnmatchedQty.Equal(testingpkg.D("0.25")))
}

func TestReportRepository_WatermarkMismatchMisses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, repo.Put(ctx, "pnl:a", 5, sampleReport()))
	_, ok := repo.Get(ctx, "pnl:a", 6)
	assert.False(t, ok)

	// Put replaces the entry for the key
	require.NoError(t, repo.Put(ctx, "pnl:a", 6, sampleReport()))
	_, ok = repo.Get(ctx, "pnl:a", 6)
	assert.True(t, ok)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestReportRepository_CorruptPayloadMisses(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()

	_, err := repo.db.Exec("INSERT INTO report_cache (cache_key, watermark, payload, created_at) VALUES ('bad', 1, x'c1', 0)")
	require.NoError(t, err)

	_, ok := repo.Get(ctx, "bad", 1)
	assert.False(t, ok)
}

func TestReportRepository_WorksAsServiceCache(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	ledger := testingpkg.NewMemoryLedger(
		testingpkg.Buy("INFY", "2024-01-01", "10", "100"),
		testingpkg.Buy("INFY", "2024-02-01", "10", "120"),
		testingpkg.Sell("INFY", "2024-03-01", "15", "150"),
	)
	svc := pnl.NewService(ledger, repo, zerolog.Nop())

	first, err := svc.Compute(ctx, fiscal.Window{})
	require.NoError(t, err)
	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	cached, err := svc.Compute(ctx, fiscal.Window{})
	require.NoError(t, err)
	assert.True(t, first.TotalRealisedPnL.Equal(cached.TotalRealisedPnL))
	assert.True(t, cached.TotalRealisedPnL.Equal(testingpkg.D("650")))
}

func TestCleanupJob(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return now }

	ledger := testingpkg.NewMemoryLedger(testingpkg.Buy("INFY", "2024-01-01", "1", "1"))

	require.NoError(t, repo.Put(ctx, "stale-watermark", 0, sampleReport()))
	require.NoError(t, repo.Put(ctx, "current", 1, sampleReport()))
	repo.now = func() time.Time { return now.Add(-30 * 24 * time.Hour) }
	require.NoError(t, repo.Put(ctx, "too-old", 1, sampleReport()))
	repo.now = func() time.Time { return now }

	job := NewCleanupJob(repo, ledger, 0, zerolog.Nop())
	assert.Equal(t, "report_cache_cleanup", job.Name())
	require.NoError(t, job.Run())

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
	_, ok := repo.Get(ctx, "current", 1)
	assert.True(t, ok)
}
