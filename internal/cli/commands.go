// Package cli implements the tradebook command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/aristath/tunefolio/internal/config"
	"github.com/aristath/tunefolio/internal/di"
	"github.com/aristath/tunefolio/internal/modules/fiscal"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	"github.com/aristath/tunefolio/internal/modules/reconciliation"
	"github.com/aristath/tunefolio/pkg/logger"
)

// app carries the wired services shared by every subcommand
type app struct {
	cfg       *config.Config
	container *di.Container
	log       zerolog.Logger
	now       func() time.Time
	asJSON    bool
}

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	return newRootCmd(time.Now)
}

func newRootCmd(now func() time.Time) *cobra.Command {
	a := &app{now: now}

	rootCmd := &cobra.Command{
		Use:   "tradebook",
		Short: "tradebook - trade ledger and realised P&L",
		Long: `tradebook imports broker tradebook exports into the trade ledger and reports
realised profit and loss per Indian financial year (April to March) using FIFO lot matching.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.open(cmd)
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if a.container != nil {
				a.container.Close()
			}
		},
	}

	rootCmd.AddCommand(newImportCmd(a))
	rootCmd.AddCommand(newSyncCmd(a))
	rootCmd.AddCommand(newPnLCmd(a))
	rootCmd.AddCommand(newFYsCmd(a))
	rootCmd.AddCommand(newHistoricalCmd(a))
	rootCmd.AddCommand(newRunsCmd(a))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&a.asJSON, "json", false, "Print JSON instead of tables")

	return rootCmd
}

// open loads configuration and wires the databases and services.
// Jobs are not registered: the CLI never runs the scheduler.
func (a *app) open(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	a.cfg = cfg

	level := cfg.LogLevel
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = "debug"
	}
	// Logs go to stderr so reports stay pipeable
	a.log = logger.New(logger.Config{Level: level, Pretty: true, Output: cmd.ErrOrStderr()})

	container, err := di.InitializeDatabases(cmd.Context(), cfg, a.log)
	if err != nil {
		return err
	}
	if err := di.InitializeServices(cmd.Context(), container, cfg, a.log); err != nil {
		container.Close()
		return err
	}
	a.container = container
	return nil
}

func newImportCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [FILE...]",
		Short: "Import tradebook CSV exports",
		Long: `Import tradebook CSV exports into the ledger. Without arguments every
tradebook-*.csv file in TRADEBOOK_DIR (or --dir) is imported. Re-importing is a no-op.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			rawOrder, _ := cmd.Flags().GetString("date-order")

			order, err := imports.ParseDateOrder(rawOrder)
			if err != nil {
				return err
			}

			var summary map[string]int
			if len(args) == 0 {
				if dir == "" {
					dir = a.cfg.TradebookDir
				}
				summary, err = a.container.Importer.ImportDirectory(cmd.Context(), dir, order)
			} else {
				summary, err = importFiles(cmd.Context(), a.container.Importer, args, order)
			}
			if err != nil {
				return err
			}
			return a.printSummary(cmd.OutOrStdout(), summary)
		},
	}

	cmd.Flags().String("dir", "", "Directory to scan for tradebook-*.csv (defaults to TRADEBOOK_DIR)")
	cmd.Flags().String("date-order", "", "Date order of the files: iso, mdy, dmy or auto (defaults to TRADEBOOK_DATE_ORDER)")

	return cmd
}

func importFiles(ctx context.Context, importer *imports.Importer, paths []string, order imports.DateOrder) (map[string]int, error) {
	sources := make([]imports.BatchSource, 0, len(paths))
	defer func() {
		for _, src := range sources {
			if c, ok := src.Reader.(io.Closer); ok {
				_ = c.Close()
			}
		}
	}()

	for _, path := range paths {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open %s: %w", path, err)
		}
		sources = append(sources, imports.BatchSource{Name: filepath.Base(path), Reader: f, DateOrder: order})
	}

	return importer.ImportBatch(ctx, sources)
}

func newSyncCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Pull today's executed trades from the broker",
		RunE: func(cmd *cobra.Command, args []string) error {
			if token, _ := cmd.Flags().GetString("token"); token != "" {
				a.container.KiteClient.SetAccessToken(token)
			}

			result := a.container.SyncService.Sync(cmd.Context())
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), result)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Status:   %s\n", result.Status)
			if result.Reason != "" {
				fmt.Fprintf(out, "Reason:   %s\n", result.Reason)
			}
			fmt.Fprintf(out, "Fetched:  %d\n", result.Fetched)
			fmt.Fprintf(out, "Inserted: %d\n", result.Inserted)

			if result.Status == imports.SyncStatusError {
				return fmt.Errorf("sync failed: %s", result.Reason)
			}
			return nil
		},
	}

	cmd.Flags().String("token", "", "Kite access token for this run (overrides KITE_ACCESS_TOKEN)")

	return cmd
}

func newPnLCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pnl",
		Short: "Report realised P&L",
		Long: `Report realised P&L for a financial year (--fy FY2024-25, default the current one),
a date range (--start/--end, inclusive) or all time (--all).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			fy, _ := cmd.Flags().GetString("fy")
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			all, _ := cmd.Flags().GetBool("all")

			var (
				report *pnl.Report
				err    error
			)
			switch {
			case all:
				report, err = a.container.PnLService.Compute(cmd.Context(), fiscal.Window{})
			case start != "" || end != "":
				for _, date := range []string{start, end} {
					if date != "" && !imports.IsISODate(date) {
						return fmt.Errorf("invalid date %q, expected YYYY-MM-DD", date)
					}
				}
				report, err = a.container.PnLService.Compute(cmd.Context(), fiscal.Window{Start: start, End: end})
			default:
				report, err = a.container.PnLService.ComputeFY(cmd.Context(), fy, a.now())
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), report)
			}
			return printReport(cmd.OutOrStdout(), report)
		},
	}

	cmd.Flags().String("fy", "", "Financial year label, e.g. FY2024-25")
	cmd.Flags().String("start", "", "First sell date (YYYY-MM-DD)")
	cmd.Flags().String("end", "", "Last sell date (YYYY-MM-DD)")
	cmd.Flags().Bool("all", false, "Report every sell ever made")
	cmd.MarkFlagsMutuallyExclusive("fy", "all")
	cmd.MarkFlagsMutuallyExclusive("fy", "start")
	cmd.MarkFlagsMutuallyExclusive("fy", "end")

	return cmd
}

func newFYsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "fys",
		Short: "List financial years with at least one sell",
		RunE: func(cmd *cobra.Command, args []string) error {
			fys, err := fiscal.AvailableFYs(cmd.Context(), a.container.Ledger, a.log)
			if err != nil {
				return err
			}
			current := fiscal.CurrentLabel(a.now())
			if a.asJSON {
				if fys == nil {
					fys = []string{}
				}
				return writeJSON(cmd.OutOrStdout(), map[string]interface{}{"fys": fys, "current": current})
			}

			out := cmd.OutOrStdout()
			for _, fy := range fys {
				marker := ""
				if fy == current {
					marker = " (current)"
				}
				fmt.Fprintf(out, "%s%s\n", fy, marker)
			}
			return nil
		},
	}
}

func newHistoricalCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "historical",
		Short: "List positions that were bought and fully sold",
		Long: `List positions whose buys are fully matched by sells. Symbols currently held are
excluded: --held overrides the broker holdings lookup with a comma separated list.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				positions []reconciliation.ExitedPosition
				err       error
			)
			if cmd.Flags().Changed("held") {
				held, _ := cmd.Flags().GetStringSlice("held")
				positions, err = a.container.Reconciler.Reconcile(cmd.Context(), held)
			} else {
				positions, err = a.container.Reconciler.ReconcileWithHoldings(cmd.Context())
			}
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), positions)
			}
			return printPositions(cmd.OutOrStdout(), positions)
		},
	}

	cmd.Flags().StringSlice("held", nil, "Symbols currently held (skips the broker lookup)")

	return cmd
}

func newRunsCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "Show recent import runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			runs, err := a.container.ImportRuns.RecentRuns(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if a.asJSON {
				return writeJSON(cmd.OutOrStdout(), runs)
			}

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(tw, "STARTED\tSOURCE\tINSERTED\tSKIPPED")
			for _, run := range runs {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%d\n", run.StartedAt.Format(time.RFC3339), run.Source, run.Inserted, run.Skipped)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().Int("limit", 20, "Number of runs to show")

	return cmd
}

func (a *app) printSummary(out io.Writer, summary map[string]int) error {
	if a.asJSON {
		return writeJSON(out, summary)
	}

	names := make([]string, 0, len(summary))
	for name := range summary {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SOURCE\tINSERTED")
	for _, name := range names {
		fmt.Fprintf(tw, "%s\t%d\n", name, summary[name])
		total += summary[name]
	}
	fmt.Fprintf(tw, "TOTAL\t%d\n", total)
	return tw.Flush()
}

func printReport(out io.Writer, report *pnl.Report) error {
	window := "all time"
	if !report.Window.IsOpen() {
		window = strings.TrimSpace(report.Window.Start + " .. " + report.Window.End)
	}
	fmt.Fprintf(out, "Realised P&L, %s\n\n", window)

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "SYMBOL\tQTY SOLD\tREALISED P&L\t")
	for _, symbol := range report.Symbols() {
		s := report.BySymbol[symbol]
		fmt.Fprintf(tw, "%s\t%s\t%s\t\n", symbol, s.QtySold.String(), s.RealisedPnL.StringFixed(2))
	}
	fmt.Fprintf(tw, "TOTAL\t\t%s\t\n", report.TotalRealisedPnL.StringFixed(2))
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(out, "\n%d sells across %d symbols\n", report.TotalSells, report.TotalSymbolsSold)
	return nil
}

func printPositions(out io.Writer, positions []reconciliation.ExitedPosition) error {
	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SYMBOL\tEXCHANGE\tQTY\tINVESTED\tPROCEEDS\tP&L\tFIRST BUY\tLAST SELL")
	for _, p := range positions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			p.Symbol, p.Exchange, p.TotalQtyTraded.String(),
			p.TotalInvested.StringFixed(2), p.TotalProceeds.StringFixed(2), p.TotalPnL.StringFixed(2),
			p.FirstBuyDate, p.LastSellDate)
	}
	return tw.Flush()
}

func writeJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
