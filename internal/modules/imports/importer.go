// Package imports turns tradebook exports and live feed trades into ledger records.
package imports

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/aristath/tunefolio/internal/domain"
)

// TradebookPattern matches the tradebook exports discovered in a directory
const TradebookPattern = "tradebook-*.csv"

// requiredColumns must all be present in a tradebook header
var requiredColumns = []string{"symbol", "trade_date", "exchange", "trade_type", "quantity", "price", "trade_id"}

// BatchSource is one tradebook export to import
type BatchSource struct {
	Name      string    // file name, recorded as the source reference
	Reader    io.Reader // CSV with a header row
	DateOrder DateOrder // empty uses the importer default
}

// FileOrder declares the date order of tradebook files whose name matches Pattern
type FileOrder struct {
	Pattern string // filepath.Match pattern against the file name
	Order   DateOrder
}

// Importer writes trade records into the ledger
type Importer struct {
	ledger       domain.LedgerWriter
	runs         domain.ImportRunRecorder // optional
	defaultOrder DateOrder
	fileOrders   []FileOrder
	log          zerolog.Logger
	now          func() time.Time
}

// NewImporter creates a new importer. runs may be nil.
// Sources that declare no date order use defaultOrder, ISO when empty.
func NewImporter(ledger domain.LedgerWriter, runs domain.ImportRunRecorder, defaultOrder DateOrder, log zerolog.Logger) *Importer {
	if defaultOrder == "" {
		defaultOrder = DateOrderISO
	}
	return &Importer{
		ledger:       ledger,
		runs:         runs,
		defaultOrder: defaultOrder,
		log:          log.With().Str("service", "imports").Logger(),
		now:          time.Now,
	}
}

// SetFileOrders declares per-file date orders for sources that do not declare
// one themselves. The first matching pattern wins.
func (i *Importer) SetFileOrders(orders []FileOrder) error {
	for _, fo := range orders {
		if _, err := filepath.Match(fo.Pattern, ""); err != nil {
			return fmt.Errorf("invalid tradebook pattern %q: %w", fo.Pattern, err)
		}
		if _, err := ParseDateOrder(string(fo.Order)); err != nil || fo.Order == "" {
			return fmt.Errorf("invalid date order %q for %s", fo.Order, fo.Pattern)
		}
	}
	i.fileOrders = orders
	return nil
}

// orderFor resolves the date order of a source: its own declaration, then
// the first matching file pattern, then the importer default
func (i *Importer) orderFor(src BatchSource) DateOrder {
	if src.DateOrder != "" {
		return src.DateOrder
	}
	for _, fo := range i.fileOrders {
		if ok, _ := filepath.Match(fo.Pattern, src.Name); ok {
			return fo.Order
		}
	}
	return i.defaultOrder
}

// sourceStats counts the outcome of one source
type sourceStats struct {
	inserted int
	skipped  int
}

// ImportBatch ingests every row of every source and returns the number of
// newly inserted records per source. Malformed rows are skipped and logged;
// only storage faults abort the batch.
func (i *Importer) ImportBatch(ctx context.Context, sources []BatchSource) (map[string]int, error) {
	summary := make(map[string]int, len(sources))

	for _, src := range sources {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		started := i.now()
		stats, err := i.importSource(ctx, src)
		summary[src.Name] += stats.inserted
		if err != nil {
			return summary, fmt.Errorf("failed to import %s: %w", src.Name, err)
		}

		i.log.Info().
			Str("source", src.Name).
			Int("inserted", stats.inserted).
			Int("skipped", stats.skipped).
			Msg("Tradebook imported")

		i.recordRun(ctx, src.Name, stats, started)
	}

	return summary, nil
}

// ImportDirectory imports every tradebook export in dir, in file name order.
// A non-empty order applies to every file; otherwise each file uses its
// declared file order or the importer default.
func (i *Importer) ImportDirectory(ctx context.Context, dir string, order DateOrder) (map[string]int, error) {
	paths, err := filepath.Glob(filepath.Join(dir, TradebookPattern))
	if err != nil {
		return nil, fmt.Errorf("failed to list tradebooks: %w", err)
	}
	sort.Strings(paths)

	if len(paths) == 0 {
		i.log.Info().Str("dir", dir).Msg("No tradebook files found")
		return map[string]int{}, nil
	}

	sources := make([]BatchSource, 0, len(paths))
	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			closeSources(sources)
			return nil, fmt.Errorf("failed to open tradebook %s: %w", path, err)
		}
		sources = append(sources, BatchSource{
			Name:      filepath.Base(path),
			Reader:    f,
			DateOrder: order,
		})
	}
	defer closeSources(sources)

	return i.ImportBatch(ctx, sources)
}

func closeSources(sources []BatchSource) {
	for _, src := range sources {
		if c, ok := src.Reader.(io.Closer); ok {
			_ = c.Close()
		}
	}
}

func (i *Importer) importSource(ctx context.Context, src BatchSource) (sourceStats, error) {
	var stats sourceStats
	order := i.orderFor(src)
	log := i.log.With().Str("source", src.Name).Str("date_order", string(order)).Logger()

	reader := csv.NewReader(src.Reader)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			log.Warn().Msg("Tradebook is empty")
			return stats, nil
		}
		log.Warn().Err(err).Msg("Failed to read tradebook header, skipping source")
		return stats, nil
	}

	columns := headerIndex(header)
	if missing := missingColumns(columns); len(missing) > 0 {
		log.Warn().Strs("missing", missing).Msg("Tradebook header lacks required columns, skipping source")
		return stats, nil
	}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.skipped++
				log.Warn().Err(err).Int("line", parseErr.Line).Msg("Skipping malformed row")
				continue
			}
			log.Error().Err(err).Msg("Failed to read tradebook, stopping source")
			break
		}
		line, _ := reader.FieldPos(0)

		record, note, err := parseRow(row, columns, order, src.Name)
		if err != nil {
			stats.skipped++
			log.Warn().Err(err).Int("line", line).Msg("Skipping row")
			continue
		}

		switch note {
		case DateAmbiguous:
			log.Warn().Int("line", line).Str("date", record.TradeDate).
				Msg("Ambiguous trade date read as M/D/YYYY")
		case DateUnrecognised:
			log.Warn().Int("line", line).Str("date", record.TradeDate).
				Msg("Unrecognised trade date stored verbatim")
		}

		inserted, err := i.ledger.Ingest(ctx, record)
		if err != nil {
			return stats, err
		}
		if inserted {
			stats.inserted++
		}
	}

	return stats, nil
}

// parseRow builds a validated record from one tradebook row
func parseRow(row []string, columns map[string]int, order DateOrder, sourceName string) (domain.TradeRecord, DateNote, error) {
	value := func(name string) string { return field(row, columns, name) }

	for _, name := range requiredColumns {
		if value(name) == "" {
			return domain.TradeRecord{}, DateExact, fmt.Errorf("missing %s", name)
		}
	}

	date, note, err := NormalizeDate(value("trade_date"), order)
	if err != nil {
		return domain.TradeRecord{}, DateExact, err
	}

	executed, ok := NormalizeTimestamp(value("order_execution_time"))
	if !ok {
		return domain.TradeRecord{}, DateExact, fmt.Errorf("invalid order_execution_time %q", value("order_execution_time"))
	}

	tradeType, err := domain.ParseTradeType(value("trade_type"))
	if err != nil {
		return domain.TradeRecord{}, DateExact, err
	}

	quantity, err := decimal.NewFromString(value("quantity"))
	if err != nil {
		return domain.TradeRecord{}, DateExact, fmt.Errorf("invalid quantity %q", value("quantity"))
	}
	price, err := decimal.NewFromString(value("price"))
	if err != nil {
		return domain.TradeRecord{}, DateExact, fmt.Errorf("invalid price %q", value("price"))
	}

	record := domain.TradeRecord{
		Symbol:             value("symbol"),
		ISIN:               domain.StringPtr(value("isin")),
		TradeDate:          date,
		Exchange:           value("exchange"),
		Segment:            value("segment"),
		Series:             domain.StringPtr(value("series")),
		TradeType:          tradeType,
		Auction:            domain.StringPtr(strings.ToLower(value("auction"))),
		Quantity:           quantity,
		Price:              price,
		TradeID:            value("trade_id"),
		OrderID:            domain.StringPtr(value("order_id")),
		ExecutionTimestamp: domain.StringPtr(executed),
		Source:             domain.Source{Kind: domain.SourceTradebook, File: sourceName},
	}

	if err := record.Validate(); err != nil {
		return domain.TradeRecord{}, DateExact, err
	}
	return record, note, nil
}

// headerIndex maps lower-cased column names to their position
func headerIndex(header []string) map[string]int {
	columns := make(map[string]int, len(header))
	for idx, name := range header {
		name = strings.TrimPrefix(name, "\ufeff")
		columns[strings.ToLower(strings.TrimSpace(name))] = idx
	}
	return columns
}

func missingColumns(columns map[string]int) []string {
	var missing []string
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}

// field returns the trimmed value of a column, "" when absent or short
func field(row []string, columns map[string]int, name string) string {
	idx, ok := columns[name]
	if !ok || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func (i *Importer) recordRun(ctx context.Context, source string, stats sourceStats, started time.Time) {
	if i.runs == nil {
		return
	}
	run := domain.ImportRun{
		RunID:      uuid.NewString(),
		Source:     source,
		Inserted:   stats.inserted,
		Skipped:    stats.skipped,
		StartedAt:  started,
		FinishedAt: i.now(),
	}
	if err := i.runs.RecordRun(ctx, run); err != nil {
		i.log.Error().Err(err).Str("source", source).Msg("Failed to record import run")
	}
}
