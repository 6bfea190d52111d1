package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	stdsync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/metrics"
	"github.com/oneclouds/oneclouds/internal/provider"
)

// DefaultAccountConcurrency bounds how many accounts sync at once in RunAll.
const DefaultAccountConcurrency = 4

// Orchestrator drives reconciliation across storage accounts. It holds the
// per-account lease: at most one sync per account at a time, enforced both
// in-process (the inFlight set) and across processes (a running row in
// sync_runs). Every run row is finalized exactly once, on success, failure,
// and cancellation alike.
type Orchestrator struct {
	store      CatalogStore
	builder    GatewayBuilder
	reconciler *Reconciler
	logger     *slog.Logger
	collector  *metrics.Collector // nil disables metrics

	concurrency int

	mu       stdsync.Mutex
	inFlight map[int64]bool
}

// NewOrchestrator creates an Orchestrator. collector may be nil; a
// non-positive concurrency falls back to DefaultAccountConcurrency.
func NewOrchestrator(
	store CatalogStore,
	builder GatewayBuilder,
	reconciler *Reconciler,
	logger *slog.Logger,
	collector *metrics.Collector,
	concurrency int,
) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}

	if concurrency <= 0 {
		concurrency = DefaultAccountConcurrency
	}

	return &Orchestrator{
		store:       store,
		builder:     builder,
		reconciler:  reconciler,
		logger:      logger,
		collector:   collector,
		concurrency: concurrency,
		inFlight:    make(map[int64]bool),
	}
}

// SyncAccount runs one reconciliation for the account. Returns
// ErrSyncInProgress without creating a run when the account lease is held.
// The returned run is the finalized row, present even when reconciliation
// failed.
func (o *Orchestrator) SyncAccount(ctx context.Context, account *catalog.StorageAccount) (*catalog.SyncRun, error) {
	if err := o.acquire(ctx, account.ID); err != nil {
		return nil, err
	}
	defer o.release(account.ID)

	run, err := o.store.CreateRun(ctx, account.ID, account.UserID)
	if err != nil {
		return nil, fmt.Errorf("creating sync run: %w", err)
	}

	o.logger.Info("sync started",
		slog.String("run_id", run.ID),
		slog.Int64("account_id", account.ID),
		slog.String("provider", account.Provider),
	)

	started := time.Now()
	syncErr := o.reconcile(ctx, account, run)

	run.Status = catalog.RunCompleted
	if syncErr != nil {
		run.Status = catalog.RunFailed
		run.ErrorDetail = syncErr.Error()
	}

	// Finalization must not be lost to the cancellation that failed the
	// run itself.
	finalizeCtx := ctx
	if finalizeCtx.Err() != nil {
		var cancel context.CancelFunc
		finalizeCtx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
	}

	if err := o.store.FinalizeRun(finalizeCtx, run); err != nil {
		o.logger.Error("finalizing sync run failed",
			slog.String("run_id", run.ID),
			slog.String("error", err.Error()),
		)

		if syncErr == nil {
			syncErr = fmt.Errorf("finalizing sync run: %w", err)
		}
	}

	o.observe(account, run, syncErr, time.Since(started))

	o.logger.Info("sync finished",
		slog.String("run_id", run.ID),
		slog.Int64("account_id", account.ID),
		slog.String("status", string(run.Status)),
		slog.Int("processed", run.FilesProcessed),
		slog.Int("added", run.FilesAdded),
		slog.Int("updated", run.FilesUpdated),
		slog.Int("deactivated", run.FilesDeactivated),
	)

	return run, syncErr
}

// reconcile builds the gateway and delegates to the reconciler.
func (o *Orchestrator) reconcile(ctx context.Context, account *catalog.StorageAccount, run *catalog.SyncRun) error {
	gw, err := o.builder.BuildGateway(ctx, account)
	if err != nil {
		return fmt.Errorf("building gateway: %w", err)
	}

	return o.reconciler.Reconcile(ctx, account, gw, run)
}

// RunAll syncs every active account, bounded by the orchestrator's
// concurrency limit. Accounts that fail do not stop the others; the joined
// error reports every failure. Accounts whose lease is held are skipped
// silently.
func (o *Orchestrator) RunAll(ctx context.Context) error {
	accounts, err := o.store.ListActiveAccounts(ctx)
	if err != nil {
		return fmt.Errorf("listing accounts: %w", err)
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(o.concurrency)

	var (
		mu   stdsync.Mutex
		errs []error
	)

	for _, account := range accounts {
		g.Go(func() error {
			_, err := o.SyncAccount(ctx, account)
			if err != nil && !errors.Is(err, ErrSyncInProgress) {
				mu.Lock()
				errs = append(errs, fmt.Errorf("account %d (%s): %w", account.ID, account.Provider, err))
				mu.Unlock()
			}

			// Never abort sibling accounts.
			return nil
		})
	}

	_ = g.Wait()

	return errors.Join(errs...)
}

// acquire takes the account lease, checking first the in-process set and
// then the catalog for a running row left by another process.
func (o *Orchestrator) acquire(ctx context.Context, accountID int64) error {
	o.mu.Lock()

	if o.inFlight[accountID] {
		o.mu.Unlock()
		return fmt.Errorf("account %d: %w", accountID, ErrSyncInProgress)
	}

	o.inFlight[accountID] = true
	o.mu.Unlock()

	running, err := o.store.HasRunningRun(ctx, accountID)
	if err != nil {
		o.release(accountID)
		return fmt.Errorf("checking for running sync: %w", err)
	}

	if running {
		o.release(accountID)
		return fmt.Errorf("account %d: %w", accountID, ErrSyncInProgress)
	}

	return nil
}

func (o *Orchestrator) release(accountID int64) {
	o.mu.Lock()
	delete(o.inFlight, accountID)
	o.mu.Unlock()
}

// observe records run metrics when a collector is configured.
func (o *Orchestrator) observe(account *catalog.StorageAccount, run *catalog.SyncRun, syncErr error, elapsed time.Duration) {
	if o.collector == nil {
		return
	}

	o.collector.SyncRuns.WithLabelValues(account.Provider, string(run.Status)).Inc()
	o.collector.FilesProcessed.WithLabelValues(account.Provider).Add(float64(run.FilesProcessed))
	o.collector.SyncDuration.WithLabelValues(account.Provider).Observe(elapsed.Seconds())

	if syncErr != nil {
		o.collector.ProviderErrors.WithLabelValues(account.Provider, errorClass(syncErr)).Inc()
	}
}

// errorClass maps an error chain to a stable metric label.
func errorClass(err error) string {
	switch {
	case errors.Is(err, provider.ErrAuthTerminal):
		return "auth_terminal"
	case errors.Is(err, provider.ErrAuthExpired):
		return "auth_expired"
	case errors.Is(err, provider.ErrUnavailable):
		return "unavailable"
	case errors.Is(err, provider.ErrMalformed):
		return "malformed"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "canceled"
	default:
		return "other"
	}
}
