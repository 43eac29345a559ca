package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tradebookCSV = "symbol,isin,trade_date,exchange,segment,trade_type,quantity,price,trade_id\n" +
	"INFY,INE009A01021,2023-06-01,NSE,EQ,buy,100,10,T1\n" +
	"INFY,INE009A01021,2023-09-01,NSE,EQ,sell,50,12,T2\n" +
	"INFY,INE009A01021,2024-05-01,NSE,EQ,sell,50,15,T3\n" +
	"TCS,,2024-06-01,NSE,EQ,buy,10,100,T4\n"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("TUNEFOLIO_DATA_DIR", dir)
	t.Setenv("TRADEBOOK_DIR", dir)
	t.Setenv("TRADEBOOK_DATE_ORDER", "iso")
	t.Setenv("LEDGER_DATABASE_URL", "")
	t.Setenv("BACKUP_S3_BUCKET", "")
	t.Setenv("KITE_API_KEY", "")
	t.Setenv("KITE_ACCESS_TOKEN", "")
	t.Setenv("LOG_LEVEL", "error")

	require.NoError(t, os.WriteFile(filepath.Join(dir, "tradebook-2023.csv"), []byte(tradebookCSV), 0644))
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	now := func() time.Time { return time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC) }

	cmd := newRootCmd(now)
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestImport_Directory(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "import", "--json")
	require.NoError(t, err)

	var summary map[string]int
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 4, summary["tradebook-2023.csv"])

	// Re-importing inserts nothing
	out, err = run(t, "import", "--json")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(out), &summary))
	assert.Equal(t, 0, summary["tradebook-2023.csv"])
}

func TestImport_Files(t *testing.T) {
	dir := setupEnv(t)

	out, err := run(t, "import", filepath.Join(dir, "tradebook-2023.csv"))
	require.NoError(t, err)
	assert.Contains(t, out, "tradebook-2023.csv")
	assert.Contains(t, out, "TOTAL")
}

func TestImport_InvalidDateOrder(t *testing.T) {
	setupEnv(t)

	_, err := run(t, "import", "--date-order", "ymd")
	assert.Error(t, err)
}

func TestPnL(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "import")
	require.NoError(t, err)

	t.Run("financial year", func(t *testing.T) {
		out, err := run(t, "pnl", "--fy", "FY2024-25", "--json")
		require.NoError(t, err)

		var report struct {
			TotalRealisedPnL string `json:"total_realised_pnl"`
			TotalSells       int    `json:"total_sells"`
		}
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "250", report.TotalRealisedPnL)
		assert.Equal(t, 1, report.TotalSells)
	})

	t.Run("all time", func(t *testing.T) {
		out, err := run(t, "pnl", "--all")
		require.NoError(t, err)
		assert.Contains(t, out, "all time")
		assert.Contains(t, out, "350.00")
		assert.Contains(t, out, "2 sells across 1 symbols")
	})

	t.Run("date range", func(t *testing.T) {
		out, err := run(t, "pnl", "--start", "2023-04-01", "--end", "2024-03-31", "--json")
		require.NoError(t, err)
		assert.Contains(t, out, `"total_realised_pnl": "100"`)
	})

	t.Run("invalid label", func(t *testing.T) {
		_, err := run(t, "pnl", "--fy", "FY2024-26")
		assert.Error(t, err)
	})

	t.Run("invalid date", func(t *testing.T) {
		_, err := run(t, "pnl", "--start", "01/04/2024")
		assert.Error(t, err)
	})
}

func TestFYs(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "import")
	require.NoError(t, err)

	out, err := run(t, "fys")
	require.NoError(t, err)
	assert.Equal(t, "FY2023-24\nFY2024-25\n", out)
}

func TestHistorical(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "import")
	require.NoError(t, err)

	out, err := run(t, "historical", "--held", "TCS", "--json")
	require.NoError(t, err)

	var positions []struct {
		Symbol string `json:"symbol"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &positions))
	require.Len(t, positions, 1)
	assert.Equal(t, "INFY", positions[0].Symbol)
}

func TestSync_SkippedWithoutCredentials(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   skipped")
}

func TestSync_TokenFlag(t *testing.T) {
	setupEnv(t)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "token key:fresh", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":[{"trade_id":"K1","order_id":"O1","exchange":"NSE",
			"tradingsymbol":"INFY","product":"CNC","average_price":1500,"quantity":5,
			"transaction_type":"BUY","fill_timestamp":"2025-06-13 09:15:00"}]}`))
	}))
	defer server.Close()
	t.Setenv("KITE_API_KEY", "key")
	t.Setenv("KITE_BASE_URL", server.URL)

	out, err := run(t, "sync", "--token", "fresh")
	require.NoError(t, err)
	assert.Contains(t, out, "Status:   ok")
	assert.Contains(t, out, "Inserted: 1")
}

func TestRuns(t *testing.T) {
	setupEnv(t)
	_, err := run(t, "import")
	require.NoError(t, err)

	out, err := run(t, "runs")
	require.NoError(t, err)
	assert.Contains(t, out, "tradebook-2023.csv")
}
