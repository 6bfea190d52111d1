// Package sync implements the reconciliation core: page-by-page merge of
// remote provider listings into the local catalog, duplicate detection over
// the merged records, and the orchestrator that runs reconciliation across
// accounts under a per-account lease.
package sync

import (
	"context"
	"errors"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

// Sentinel errors surfaced by the orchestrator.
var (
	// ErrSyncInProgress is returned when an account already has a sync
	// running, either in this process or recorded in the catalog.
	ErrSyncInProgress = errors.New("sync already in progress for account")
)

// CatalogStore is the slice of the catalog the reconciler and orchestrator
// consume. *catalog.Store satisfies it.
type CatalogStore interface {
	ListFilesForAccount(ctx context.Context, accountID int64) ([]*catalog.FileRecord, error)
	UpsertPage(ctx context.Context, records []*catalog.FileRecord) error
	DeactivateFiles(ctx context.Context, accountID int64, providerFileIDs []string, now int64) (int64, error)
	SumActiveSize(ctx context.Context, accountID int64) (int64, error)
	UpdateAccountQuota(ctx context.Context, id, used, limit int64) error
	TouchLastSync(ctx context.Context, id, when int64) error

	CreateRun(ctx context.Context, accountID, userID int64) (*catalog.SyncRun, error)
	FinalizeRun(ctx context.Context, run *catalog.SyncRun) error
	HasRunningRun(ctx context.Context, accountID int64) (bool, error)

	ListActiveAccounts(ctx context.Context) ([]*catalog.StorageAccount, error)
}

// DedupeStore is the catalog slice duplicate detection reads from.
type DedupeStore interface {
	ListActiveFilesForUser(ctx context.Context, userID int64, mode catalog.AccessMode) ([]*catalog.FileRecord, error)
}

// GatewayBuilder turns a stored account into a live provider gateway. The
// CLI implementation unseals the account credentials and looks the provider
// up in the registry; tests substitute fakes.
type GatewayBuilder interface {
	BuildGateway(ctx context.Context, account *catalog.StorageAccount) (provider.Gateway, error)
}
