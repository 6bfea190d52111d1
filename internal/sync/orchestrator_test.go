package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

func testOrchestrator(t *testing.T, store *fakeStore, gw provider.Gateway) *Orchestrator {
	t.Helper()

	logger := testLogger()
	rec := NewReconciler(store, provider.NewCoordinator(nil, logger), logger)

	return NewOrchestrator(store, &fakeBuilder{gw: gw}, rec, logger, nil, 0)
}

func TestSyncAccount_CompletedRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{pages: singlePage(desc("f1", "a.jpg", 100, "image/jpeg"))}

	run, err := testOrchestrator(t, store, gw).SyncAccount(context.Background(), testAccount(1))
	require.NoError(t, err)

	assert.Equal(t, catalog.RunCompleted, run.Status)
	assert.Empty(t, run.ErrorDetail)
	assert.Equal(t, 1, run.FilesAdded)

	// Finalized exactly once.
	require.Len(t, store.finalized, 1)
	assert.Equal(t, run, store.finalized[0])
}

func TestSyncAccount_FailedRunIsFinalized(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{
		pages:    singlePage(desc("f1", "a.jpg", 100, "image/jpeg")),
		listErrs: map[int]error{0: errors.New("listing exploded")},
	}

	run, err := testOrchestrator(t, store, gw).SyncAccount(context.Background(), testAccount(1))
	require.Error(t, err)

	require.NotNil(t, run)
	assert.Equal(t, catalog.RunFailed, run.Status)
	assert.Contains(t, run.ErrorDetail, "listing exploded")
	require.Len(t, store.finalized, 1)
}

func TestSyncAccount_CancellationFinalizesAsFailed(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{pages: singlePage(desc("f1", "a.jpg", 100, "image/jpeg"))}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	run, err := testOrchestrator(t, store, gw).SyncAccount(ctx, testAccount(1))
	require.ErrorIs(t, err, context.Canceled)

	require.NotNil(t, run)
	assert.Equal(t, catalog.RunFailed, run.Status)
	require.Len(t, store.finalized, 1)
}

func TestSyncAccount_LeaseHeldInCatalog(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.hasRunning = true

	gw := &fakeGateway{pages: singlePage()}

	_, err := testOrchestrator(t, store, gw).SyncAccount(context.Background(), testAccount(1))
	require.ErrorIs(t, err, ErrSyncInProgress)

	// No run row was created for the rejected attempt.
	assert.Empty(t, store.finalized)
}

func TestSyncAccount_LeaseHeldInProcess(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{pages: singlePage()}

	orch := testOrchestrator(t, store, gw)
	orch.mu.Lock()
	orch.inFlight[1] = true
	orch.mu.Unlock()

	_, err := orch.SyncAccount(context.Background(), testAccount(1))
	require.ErrorIs(t, err, ErrSyncInProgress)
}

func TestSyncAccount_LeaseReleasedAfterRun(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{pages: singlePage(desc("f1", "a.jpg", 100, "image/jpeg"))}

	orch := testOrchestrator(t, store, gw)

	_, err := orch.SyncAccount(context.Background(), testAccount(1))
	require.NoError(t, err)

	_, err = orch.SyncAccount(context.Background(), testAccount(1))
	require.NoError(t, err)

	assert.Len(t, store.finalized, 2)
}

func TestRunAll_FailuresDoNotStopSiblings(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	store.accounts = []*catalog.StorageAccount{testAccount(1), testAccount(2)}

	logger := testLogger()
	rec := NewReconciler(store, provider.NewCoordinator(nil, logger), logger)
	builder := &fakeBuilder{fn: func(account *catalog.StorageAccount) (provider.Gateway, error) {
		if account.ID == 1 {
			return &fakeGateway{
				pages:    singlePage(),
				listErrs: map[int]error{0: errors.New("first account down")},
			}, nil
		}

		return &fakeGateway{pages: singlePage(desc("f1", "a.jpg", 100, "image/jpeg"))}, nil
	}}

	err := NewOrchestrator(store, builder, rec, logger, nil, 0).RunAll(context.Background())
	require.Error(t, err)

	// Both runs were created and finalized despite one failing.
	assert.Len(t, store.finalized, 2)
}

func TestRunAll_NoAccounts(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	gw := &fakeGateway{pages: singlePage()}

	require.NoError(t, testOrchestrator(t, store, gw).RunAll(context.Background()))
}

func TestNewOrchestrator_Concurrency(t *testing.T) {
	t.Parallel()

	store := newFakeStore()
	logger := testLogger()
	rec := NewReconciler(store, provider.NewCoordinator(nil, logger), logger)

	o := NewOrchestrator(store, &fakeBuilder{}, rec, logger, nil, 2)
	assert.Equal(t, 2, o.concurrency)

	o = NewOrchestrator(store, &fakeBuilder{}, rec, logger, nil, 0)
	assert.Equal(t, DefaultAccountConcurrency, o.concurrency)
}
