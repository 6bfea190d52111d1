package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	stdsync "sync"
	"testing"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// fakeStore is an in-memory CatalogStore and DedupeStore with error
// injection per method.
type fakeStore struct {
	mu stdsync.Mutex

	nextFileID int64
	files      map[string]*catalog.FileRecord // keyed by provider file id

	accounts []*catalog.StorageAccount

	upsertCalls int
	upsertErr   error
	// failUpsertAt fails the nth UpsertPage call (1-based), 0 disables.
	failUpsertAt int

	deactivated     [][]string
	deactivateErr   error
	hasRunning      bool
	hasRunningErr   error
	finalized       []*catalog.SyncRun
	finalizeErr     error
	createRunErr    error
	quotaUsed       int64
	quotaLimit      int64
	quotaUpdates    int
	sumActive       int64
	lastSyncTouched bool

	listForUser []*catalog.FileRecord
}

func newFakeStore() *fakeStore {
	return &fakeStore{files: make(map[string]*catalog.FileRecord)}
}

func (s *fakeStore) ListFilesForAccount(_ context.Context, accountID int64) ([]*catalog.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*catalog.FileRecord

	for _, f := range s.files {
		if f.AccountID == accountID {
			copied := *f
			out = append(out, &copied)
		}
	}

	return out, nil
}

func (s *fakeStore) UpsertPage(_ context.Context, records []*catalog.FileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.upsertCalls++

	if s.failUpsertAt != 0 && s.upsertCalls == s.failUpsertAt {
		return errors.New("injected upsert failure")
	}

	if s.upsertErr != nil {
		return s.upsertErr
	}

	for _, rec := range records {
		if existing, ok := s.files[rec.ProviderFileID]; ok {
			rec.ID = existing.ID
		} else {
			s.nextFileID++
			rec.ID = s.nextFileID
		}

		copied := *rec
		s.files[rec.ProviderFileID] = &copied
	}

	return nil
}

func (s *fakeStore) DeactivateFiles(_ context.Context, _ int64, ids []string, _ int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.deactivateErr != nil {
		return 0, s.deactivateErr
	}

	var n int64

	for _, id := range ids {
		if f, ok := s.files[id]; ok && f.Active {
			f.Active = false
			n++
		}
	}

	s.deactivated = append(s.deactivated, ids)

	return n, nil
}

func (s *fakeStore) SumActiveSize(_ context.Context, _ int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.sumActive, nil
}

func (s *fakeStore) UpdateAccountQuota(_ context.Context, _, used, limit int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotaUsed, s.quotaLimit = used, limit
	s.quotaUpdates++

	return nil
}

func (s *fakeStore) TouchLastSync(_ context.Context, _, _ int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.lastSyncTouched = true
	return nil
}

func (s *fakeStore) CreateRun(_ context.Context, accountID, userID int64) (*catalog.SyncRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.createRunErr != nil {
		return nil, s.createRunErr
	}

	return &catalog.SyncRun{
		ID:        fmt.Sprintf("run-%d", len(s.finalized)+1),
		AccountID: accountID,
		UserID:    userID,
		StartedAt: catalog.NowNano(),
		Status:    catalog.RunRunning,
	}, nil
}

func (s *fakeStore) FinalizeRun(_ context.Context, run *catalog.SyncRun) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.finalizeErr != nil {
		return s.finalizeErr
	}

	s.finalized = append(s.finalized, run)

	return nil
}

func (s *fakeStore) HasRunningRun(_ context.Context, _ int64) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.hasRunning, s.hasRunningErr
}

func (s *fakeStore) ListActiveAccounts(_ context.Context) ([]*catalog.StorageAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.accounts, nil
}

func (s *fakeStore) ListActiveFilesForUser(_ context.Context, _ int64, _ catalog.AccessMode) ([]*catalog.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.listForUser, nil
}

// fakeGateway serves scripted listing pages. listErrs fails the nth ListFiles
// call (0-based).
type fakeGateway struct {
	pages    []*provider.Page
	listErrs map[int]error
	calls    int

	quota    *provider.Quota
	quotaErr error

	refreshCalls int
	refreshErr   error
	creds        provider.Credentials
}

func (g *fakeGateway) Name() string { return "fake" }

func (g *fakeGateway) ListFiles(_ context.Context, pageToken string) (*provider.Page, error) {
	call := g.calls
	g.calls++

	if err, ok := g.listErrs[call]; ok {
		return nil, err
	}

	idx := 0
	if pageToken != "" {
		fmt.Sscanf(pageToken, "page-%d", &idx)
	}

	page := g.pages[idx]

	next := ""
	if idx+1 < len(g.pages) {
		next = fmt.Sprintf("page-%d", idx+1)
	}

	return &provider.Page{Files: page.Files, NextPageToken: next}, nil
}

func (g *fakeGateway) GetQuota(_ context.Context) (*provider.Quota, error) {
	if g.quotaErr != nil {
		return nil, g.quotaErr
	}

	if g.quota == nil {
		return nil, provider.ErrQuotaUnavailable
	}

	return g.quota, nil
}

func (g *fakeGateway) DeleteFile(context.Context, string) error { return nil }

func (g *fakeGateway) UploadFile(context.Context, *provider.Upload) error { return nil }

func (g *fakeGateway) Refresh(context.Context) (*provider.Credentials, error) {
	g.refreshCalls++

	if g.refreshErr != nil {
		return nil, g.refreshErr
	}

	return &g.creds, nil
}

func (g *fakeGateway) CurrentCredentials() provider.Credentials { return g.creds }

// fakeBuilder hands out a fixed gateway, or per-account gateways via fn.
type fakeBuilder struct {
	gw  provider.Gateway
	err error
	fn  func(account *catalog.StorageAccount) (provider.Gateway, error)
}

func (b *fakeBuilder) BuildGateway(_ context.Context, account *catalog.StorageAccount) (provider.Gateway, error) {
	if b.fn != nil {
		return b.fn(account)
	}

	return b.gw, b.err
}

func testAccount(id int64) *catalog.StorageAccount {
	return &catalog.StorageAccount{
		ID:       id,
		UserID:   1,
		Provider: "fake",
		Mode:     catalog.ModeMetadata,
		Active:   true,
	}
}

func testReconciler(t *testing.T, store *fakeStore) *Reconciler {
	t.Helper()

	return NewReconciler(store, provider.NewCoordinator(nil, testLogger()), testLogger())
}
