package scheduler

import (
	"context"

	"github.com/aristath/tunefolio/internal/modules/imports"
)

// TradeSyncer pulls the live feed into the ledger
type TradeSyncer interface {
	Sync(ctx context.Context) imports.SyncResult
}

// LedgerBackuper uploads a snapshot of the ledger
type LedgerBackuper interface {
	Backup(ctx context.Context) error
}
