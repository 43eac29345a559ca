package di

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/tunefolio/internal/config"
	"github.com/aristath/tunefolio/internal/database"
	"github.com/aristath/tunefolio/internal/database/postgres"
	"github.com/aristath/tunefolio/internal/modules/trading"
)

// InitializeDatabases opens the ledger and cache databases and applies schemas.
// The ledger lives in Postgres when a DSN is configured, in SQLite otherwise.
func InitializeDatabases(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// cache.db - memoised reports, safe to delete
	cacheDB, err := database.New(database.Config{
		Path:    cfg.CachePath(),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache database: %w", err)
	}
	container.CacheDB = cacheDB

	if cfg.LedgerDatabaseURL != "" {
		pool, err := postgres.NewPool(ctx, cfg.LedgerDatabaseURL)
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to connect to ledger database: %w", err)
		}
		container.LedgerPool = pool

		if err := postgres.Migrate(ctx, pool); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to migrate ledger database: %w", err)
		}

		store := postgres.NewTradeStore(pool, log)
		container.Ledger = store
		container.ImportRuns = store
		log.Info().Msg("Ledger stored in Postgres")
	} else {
		// ledger.db - immutable trade history
		ledgerDB, err := database.New(database.Config{
			Path:    cfg.LedgerPath(),
			Profile: database.ProfileLedger,
			Name:    "ledger",
		})
		if err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to initialize ledger database: %w", err)
		}
		container.LedgerDB = ledgerDB

		repo := trading.NewTradeRepository(ledgerDB.Conn(), log)
		container.Ledger = repo
		container.ImportRuns = repo
		log.Info().Str("path", ledgerDB.Path()).Msg("Ledger stored in SQLite")
	}

	for _, db := range container.SQLiteDatabases() {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Msg("Databases initialized and schemas applied")

	return container, nil
}
