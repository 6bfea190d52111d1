package sync

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/oneclouds/oneclouds/internal/catalog"
	"github.com/oneclouds/oneclouds/internal/provider"
)

// Reconciler merges remote provider listings into the catalog one page at a
// time. Each page is persisted in its own transaction, so a failure mid-run
// leaves all previously merged pages committed and the deactivation pass
// skipped — records are never deactivated on the evidence of a partial
// listing.
type Reconciler struct {
	store  CatalogStore
	coord  *provider.Coordinator
	logger *slog.Logger
}

func NewReconciler(store CatalogStore, coord *provider.Coordinator, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Reconciler{store: store, coord: coord, logger: logger}
}

// Reconcile runs one full reconciliation for the account, updating the run
// counters in place. The merge is idempotent: reconciling an unchanged
// remote listing twice leaves the catalog identical.
func (r *Reconciler) Reconcile(ctx context.Context, account *catalog.StorageAccount, gw provider.Gateway, run *catalog.SyncRun) error {
	index, err := r.loadIndex(ctx, account.ID)
	if err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(index))
	complete := true
	pageToken := ""

	for {
		// Cancellation is honored between pages, never inside one.
		select {
		case <-ctx.Done():
			return fmt.Errorf("sync canceled: %w", ctx.Err())
		default:
		}

		page, err := provider.Do(ctx, r.coord, account.ID, gw, func(ctx context.Context) (*provider.Page, error) {
			return gw.ListFiles(ctx, pageToken)
		})
		if err != nil {
			return fmt.Errorf("listing files: %w", err)
		}

		if page.Files == nil {
			// No listing at all is not the same as an empty drive.
			// Merge nothing and leave existing records untouched.
			complete = false

			r.logger.Warn("provider returned no listing for page",
				slog.Int64("account_id", account.ID),
				slog.String("provider", account.Provider),
			)
		} else if err := r.mergePage(ctx, account, page.Files, index, seen, run); err != nil {
			return err
		}

		if page.NextPageToken == "" {
			break
		}

		pageToken = page.NextPageToken
	}

	if complete {
		if err := r.deactivateMissing(ctx, account.ID, index, seen, run); err != nil {
			return err
		}
	} else {
		r.logger.Warn("skipping deactivation pass, listing was incomplete",
			slog.Int64("account_id", account.ID),
		)
	}

	r.refreshQuota(ctx, account, gw)

	if err := r.store.TouchLastSync(ctx, account.ID, catalog.NowNano()); err != nil {
		return fmt.Errorf("recording last sync: %w", err)
	}

	return nil
}

// loadIndex reads every known record for the account into a map keyed by
// provider file id.
func (r *Reconciler) loadIndex(ctx context.Context, accountID int64) (map[string]*catalog.FileRecord, error) {
	records, err := r.store.ListFilesForAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("loading catalog index: %w", err)
	}

	index := make(map[string]*catalog.FileRecord, len(records))
	for _, rec := range records {
		index[rec.ProviderFileID] = rec
	}

	return index, nil
}

// mergePage compares one page of descriptors against the index and upserts
// the new and changed records in a single transaction. Unchanged records are
// marked seen but not rewritten.
func (r *Reconciler) mergePage(
	ctx context.Context,
	account *catalog.StorageAccount,
	files []provider.FileDescriptor,
	index map[string]*catalog.FileRecord,
	seen map[string]struct{},
	run *catalog.SyncRun,
) error {
	var dirty []*catalog.FileRecord

	for i := range files {
		desc := &files[i]

		if desc.ProviderFileID == "" {
			r.logger.Warn("skipping remote file without provider id",
				slog.Int64("account_id", account.ID),
				slog.String("name", desc.Name),
			)

			continue
		}

		run.FilesProcessed++
		seen[desc.ProviderFileID] = struct{}{}

		incoming := recordFromDescriptor(account, desc)

		existing, known := index[desc.ProviderFileID]
		switch {
		case !known:
			run.FilesAdded++
			dirty = append(dirty, incoming)
		case recordChanged(existing, incoming):
			run.FilesUpdated++
			dirty = append(dirty, incoming)
		}
	}

	if len(dirty) == 0 {
		return nil
	}

	if err := r.store.UpsertPage(ctx, dirty); err != nil {
		return fmt.Errorf("merging page: %w", err)
	}

	// Keep the index current so a file repeated across pages is not
	// double-counted as changed.
	for _, rec := range dirty {
		index[rec.ProviderFileID] = rec
	}

	return nil
}

// deactivateMissing flips Active off for every indexed record absent from
// the complete listing.
func (r *Reconciler) deactivateMissing(
	ctx context.Context,
	accountID int64,
	index map[string]*catalog.FileRecord,
	seen map[string]struct{},
	run *catalog.SyncRun,
) error {
	var missing []string

	for id, rec := range index {
		if !rec.Active {
			continue
		}

		if _, ok := seen[id]; !ok {
			missing = append(missing, id)
		}
	}

	if len(missing) == 0 {
		return nil
	}

	n, err := r.store.DeactivateFiles(ctx, accountID, missing, catalog.NowNano())
	if err != nil {
		return fmt.Errorf("deactivating vanished files: %w", err)
	}

	run.FilesDeactivated = int(n)

	return nil
}

// refreshQuota updates the account quota snapshot from the provider, falling
// back to the sum of active file sizes when the provider call fails. Quota
// failures never fail the run.
func (r *Reconciler) refreshQuota(ctx context.Context, account *catalog.StorageAccount, gw provider.Gateway) {
	used, limit := int64(0), account.StorageLimit

	quota, err := provider.Do(ctx, r.coord, account.ID, gw, func(ctx context.Context) (*provider.Quota, error) {
		return gw.GetQuota(ctx)
	})
	if err == nil {
		used, limit = quota.Used, quota.Total
	} else {
		r.logger.Warn("provider quota unavailable, summing catalog sizes",
			slog.Int64("account_id", account.ID),
			slog.String("error", err.Error()),
		)

		used, err = r.store.SumActiveSize(ctx, account.ID)
		if err != nil {
			r.logger.Warn("quota fallback failed", slog.String("error", err.Error()))
			return
		}
	}

	if err := r.store.UpdateAccountQuota(ctx, account.ID, used, limit); err != nil {
		r.logger.Warn("persisting quota failed", slog.String("error", err.Error()))
	}
}

// recordFromDescriptor builds the catalog record for one remote file. Both
// local timestamps are stamped here; the upsert keeps the stored created_at
// on conflict, so only updated_at moves for an existing record.
func recordFromDescriptor(account *catalog.StorageAccount, desc *provider.FileDescriptor) *catalog.FileRecord {
	now := catalog.NowNano()

	rec := &catalog.FileRecord{
		UserID:           account.UserID,
		AccountID:        account.ID,
		ProviderFileID:   desc.ProviderFileID,
		Name:             desc.Name,
		Path:             desc.Path,
		Size:             desc.Size,
		MimeType:         desc.MimeType,
		IsFolder:         desc.IsFolder,
		CreatedAtSource:  nanoPtr(desc.CreatedAt),
		ModifiedAtSource: nanoPtr(desc.ModifiedAt),
		PreviewLink:      desc.PreviewLink,
		DownloadLink:     desc.DownloadLink,
		WebViewLink:      desc.WebViewLink,
		ContentHash:      desc.ContentHash,
		Active:           true,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	if !rec.IsFolder {
		rec.Extension = catalog.FileExtension(rec.Name)
		rec.SizeHash = ComputeSizeHash(rec.Name, rec.Size, rec.MimeType)
	}

	rec.Classify()

	return rec
}

// recordChanged reports whether the incoming record differs from the stored
// one in any canonical field. A deactivated record reappearing in a listing
// always counts as changed so it gets reactivated.
func recordChanged(existing, incoming *catalog.FileRecord) bool {
	if !existing.Active {
		return true
	}

	return existing.Name != incoming.Name ||
		existing.Path != incoming.Path ||
		existing.MimeType != incoming.MimeType ||
		existing.IsFolder != incoming.IsFolder ||
		!int64PtrEqual(existing.Size, incoming.Size) ||
		!int64PtrEqual(existing.ModifiedAtSource, incoming.ModifiedAtSource) ||
		existing.ContentHash != incoming.ContentHash ||
		existing.PreviewLink != incoming.PreviewLink ||
		existing.DownloadLink != incoming.DownloadLink ||
		existing.WebViewLink != incoming.WebViewLink
}

func int64PtrEqual(a, b *int64) bool {
	if a == nil || b == nil {
		return a == b
	}

	return *a == *b
}

func nanoPtr(t *time.Time) *int64 {
	if t == nil {
		return nil
	}

	n := t.UnixNano()

	return &n
}
