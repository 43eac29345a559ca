package di

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/cache"
	"github.com/aristath/tunefolio/internal/clients/kite"
	"github.com/aristath/tunefolio/internal/config"
	"github.com/aristath/tunefolio/internal/modules/imports"
	"github.com/aristath/tunefolio/internal/modules/pnl"
	"github.com/aristath/tunefolio/internal/modules/reconciliation"
	"github.com/aristath/tunefolio/internal/reliability"
)

// InitializeServices builds clients and services on top of the databases
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil || container.Ledger == nil {
		return fmt.Errorf("container has no ledger")
	}

	container.KiteClient = kite.NewClient(cfg.Kite.BaseURL, cfg.Kite.APIKey, cfg.Kite.AccessToken, log)

	order, err := imports.ParseDateOrder(cfg.TradebookOrder)
	if err != nil {
		return err
	}
	container.Importer = imports.NewImporter(container.Ledger, container.ImportRuns, order, log)
	fileOrders := make([]imports.FileOrder, 0, len(cfg.TradebookOrders))
	for _, fo := range cfg.TradebookOrders {
		fileOrders = append(fileOrders, imports.FileOrder{Pattern: fo.Pattern, Order: imports.DateOrder(fo.Order)})
	}
	if err := container.Importer.SetFileOrders(fileOrders); err != nil {
		return err
	}
	container.SyncService = imports.NewSyncService(container.KiteClient, container.Importer, log)

	container.ReportCache = cache.NewReportRepository(container.CacheDB.Conn(), log)
	container.PnLService = pnl.NewService(container.Ledger, container.ReportCache, log)
	container.Reconciler = reconciliation.NewReconciler(container.Ledger, container.KiteClient, log)

	if cfg.Backup.Enabled() {
		if container.LedgerDB == nil {
			// Postgres has its own backup tooling
			log.Warn().Msg("Object storage backups only cover the SQLite ledger; skipping")
		} else {
			store, err := reliability.NewR2Client(ctx, cfg.Backup, log)
			if err != nil {
				return fmt.Errorf("failed to create backup client: %w", err)
			}
			container.BackupService = reliability.NewLedgerBackupService(
				store,
				filepath.Join(cfg.DataDir, "backup-staging"),
				cfg.Backup.RetentionDays,
				log,
				container.LedgerDB,
			)
		}
	}

	log.Info().
		Bool("kite_credentials", container.KiteClient.HasCredentials()).
		Bool("backups", container.BackupService != nil).
		Msg("Services initialized")

	return nil
}
