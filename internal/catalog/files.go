package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// File record queries.
const (
	sqlFileColumns = `id, user_id, account_id, provider_file_id, name, path,
		extension, size, mime_type, is_folder, is_image, is_video, is_document,
		created_at_source, modified_at_source,
		preview_link, download_link, web_view_link,
		content_hash, size_hash, active, created_at, updated_at`

	sqlGetFile = `SELECT ` + sqlFileColumns + ` FROM file_records WHERE id = ?`

	// Upsert on the external identity pair. The insert path sets created_at;
	// the update path deliberately leaves it alone.
	sqlUpsertFile = `INSERT INTO file_records
		(user_id, account_id, provider_file_id, name, path,
		 extension, size, mime_type, is_folder, is_image, is_video, is_document,
		 created_at_source, modified_at_source,
		 preview_link, download_link, web_view_link,
		 content_hash, size_hash, active, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id, provider_file_id) DO UPDATE SET
			name               = excluded.name,
			path               = excluded.path,
			extension          = excluded.extension,
			size               = excluded.size,
			mime_type          = excluded.mime_type,
			is_folder          = excluded.is_folder,
			is_image           = excluded.is_image,
			is_video           = excluded.is_video,
			is_document        = excluded.is_document,
			created_at_source  = excluded.created_at_source,
			modified_at_source = excluded.modified_at_source,
			preview_link       = excluded.preview_link,
			download_link      = excluded.download_link,
			web_view_link      = excluded.web_view_link,
			content_hash       = excluded.content_hash,
			size_hash          = excluded.size_hash,
			active             = excluded.active,
			updated_at         = excluded.updated_at`

	sqlListFilesForAccount = `SELECT ` + sqlFileColumns +
		` FROM file_records WHERE account_id = ?`

	// Active records for one user with an optional access-mode filter,
	// applied uniformly via the join. Passing '' disables the filter.
	sqlListActiveForUser = `SELECT ` + fileColumnsPrefixed +
		` FROM file_records f
		JOIN storage_accounts sa ON sa.id = f.account_id
		WHERE f.user_id = ? AND f.active = 1 AND (? = '' OR sa.mode = ?)
		ORDER BY f.name, f.id`

	sqlSumActiveSize = `SELECT COALESCE(SUM(size), 0) FROM file_records
		WHERE account_id = ? AND active = 1 AND is_folder = 0`

	sqlDeleteFile = `DELETE FROM file_records WHERE id = ?`

	sqlLargeFiles = `SELECT ` + sqlFileColumns +
		` FROM file_records
		WHERE user_id = ? AND active = 1 AND is_folder = 0 AND size >= ?
		ORDER BY size DESC LIMIT ?`
)

// fileColumnsPrefixed is sqlFileColumns qualified with the f. alias for joins.
const fileColumnsPrefixed = `f.id, f.user_id, f.account_id, f.provider_file_id, f.name, f.path,
		f.extension, f.size, f.mime_type, f.is_folder, f.is_image, f.is_video, f.is_document,
		f.created_at_source, f.modified_at_source,
		f.preview_link, f.download_link, f.web_view_link,
		f.content_hash, f.size_hash, f.active, f.created_at, f.updated_at`

func (s *Store) prepareFileStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.fileStmts.get, sqlGetFile, "getFile"},
		{&s.fileStmts.upsert, sqlUpsertFile, "upsertFile"},
		{&s.fileStmts.listForAccount, sqlListFilesForAccount, "listFilesForAccount"},
		{&s.fileStmts.listActiveForUser, sqlListActiveForUser, "listActiveForUser"},
		{&s.fileStmts.sumActiveSize, sqlSumActiveSize, "sumActiveSize"},
		{&s.fileStmts.deleteByID, sqlDeleteFile, "deleteFile"},
		{&s.fileStmts.largeFiles, sqlLargeFiles, "largeFiles"},
	})
}

// scanFile reads one file_records row.
func scanFile(row interface{ Scan(...any) error }) (*FileRecord, error) {
	var f FileRecord

	err := row.Scan(
		&f.ID, &f.UserID, &f.AccountID, &f.ProviderFileID, &f.Name, &f.Path,
		&f.Extension, &f.Size, &f.MimeType, &f.IsFolder, &f.IsImage, &f.IsVideo, &f.IsDocument,
		&f.CreatedAtSource, &f.ModifiedAtSource,
		&f.PreviewLink, &f.DownloadLink, &f.WebViewLink,
		&f.ContentHash, &f.SizeHash, &f.Active, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &f, nil
}

func collectFiles(rows *sql.Rows) ([]*FileRecord, error) {
	var files []*FileRecord

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan file: %w", err)
		}

		files = append(files, f)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate files: %w", err)
	}

	return files, nil
}

// GetFile returns the file record with the given id, or ErrNotFound.
func (s *Store) GetFile(ctx context.Context, id int64) (*FileRecord, error) {
	f, err := scanFile(s.fileStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: file %d: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("catalog: get file %d: %w", id, err)
	}

	return f, nil
}

// ListFilesForAccount returns every record (active and inactive) for one
// account. The reconciler loads this as its in-memory index.
func (s *Store) ListFilesForAccount(ctx context.Context, accountID int64) ([]*FileRecord, error) {
	rows, err := s.fileStmts.listForAccount.QueryContext(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list files for account %d: %w", accountID, err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// UpsertPage writes one reconciliation page of file records in a single
// transaction: either the whole page commits or none of it does.
func (s *Store) UpsertPage(ctx context.Context, records []*FileRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return err
	}

	stmt := tx.StmtContext(ctx, s.fileStmts.upsert)
	defer stmt.Close()

	for _, f := range records {
		_, execErr := stmt.ExecContext(ctx,
			f.UserID, f.AccountID, f.ProviderFileID, f.Name, f.Path,
			f.Extension, f.Size, f.MimeType, f.IsFolder, f.IsImage, f.IsVideo, f.IsDocument,
			f.CreatedAtSource, f.ModifiedAtSource,
			f.PreviewLink, f.DownloadLink, f.WebViewLink,
			f.ContentHash, f.SizeHash, f.Active, f.CreatedAt, f.UpdatedAt,
		)
		if execErr != nil {
			rollbackErr := tx.Rollback()
			return fmt.Errorf("catalog: upsert file %q: %w (rollback: %v)", f.ProviderFileID, execErr, rollbackErr)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("catalog: commit page: %w", err)
	}

	return nil
}

// DeactivateFiles flips active to false for the given provider file ids in a
// single transaction, returning how many rows actually changed. Runs as its
// own transaction, separate from page commits.
func (s *Store) DeactivateFiles(ctx context.Context, accountID int64, providerFileIDs []string, now int64) (int64, error) {
	if len(providerFileIDs) == 0 {
		return 0, nil
	}

	tx, err := s.beginTx(ctx)
	if err != nil {
		return 0, err
	}

	const deactivateSQL = `UPDATE file_records
		SET active = 0, updated_at = ?
		WHERE account_id = ? AND provider_file_id = ? AND active = 1`

	stmt, err := tx.PrepareContext(ctx, deactivateSQL)
	if err != nil {
		rollbackErr := tx.Rollback()
		return 0, fmt.Errorf("catalog: prepare deactivate: %w (rollback: %v)", err, rollbackErr)
	}
	defer stmt.Close()

	var total int64

	for _, pfid := range providerFileIDs {
		res, execErr := stmt.ExecContext(ctx, now, accountID, pfid)
		if execErr != nil {
			rollbackErr := tx.Rollback()
			return 0, fmt.Errorf("catalog: deactivate file %q: %w (rollback: %v)", pfid, execErr, rollbackErr)
		}

		n, _ := res.RowsAffected()
		total += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("catalog: commit deactivation: %w", err)
	}

	return total, nil
}

// SumActiveSize returns the total size in bytes of active non-folder records
// for one account. Used as the local quota fallback when the provider quota
// call fails.
func (s *Store) SumActiveSize(ctx context.Context, accountID int64) (int64, error) {
	var total int64

	if err := s.fileStmts.sumActiveSize.QueryRowContext(ctx, accountID).Scan(&total); err != nil {
		return 0, fmt.Errorf("catalog: sum active size for account %d: %w", accountID, err)
	}

	return total, nil
}

// ListActiveFilesForUser returns all active records for one user, ordered by
// name for deterministic duplicate grouping. mode filters to accounts with
// that access mode; pass "" for all accounts.
func (s *Store) ListActiveFilesForUser(ctx context.Context, userID int64, mode AccessMode) ([]*FileRecord, error) {
	rows, err := s.fileStmts.listActiveForUser.QueryContext(ctx, userID, string(mode), string(mode))
	if err != nil {
		return nil, fmt.Errorf("catalog: list active files for user %d: %w", userID, err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// DeleteFile hard-deletes a record. Only user-initiated removal (duplicate
// cleanup, account deletion) reaches this — reconciliation never does.
func (s *Store) DeleteFile(ctx context.Context, id int64) error {
	if _, err := s.fileStmts.deleteByID.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete file %d: %w", id, err)
	}

	return nil
}

// ListLargeFiles returns the biggest active files at or above minSize.
func (s *Store) ListLargeFiles(ctx context.Context, userID, minSize int64, limit int) ([]*FileRecord, error) {
	rows, err := s.fileStmts.largeFiles.QueryContext(ctx, userID, minSize, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list large files: %w", err)
	}
	defer rows.Close()

	return collectFiles(rows)
}

// Stats aggregates catalog totals for one user.
func (s *Store) Stats(ctx context.Context, userID int64) (*UserStats, error) {
	const statsSQL = `SELECT
		COALESCE(SUM(CASE WHEN active = 1 AND is_folder = 0 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN active = 1 AND is_folder = 1 THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN active = 1 AND is_folder = 0 THEN size ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN active = 0 THEN 1 ELSE 0 END), 0)
		FROM file_records WHERE user_id = ?`

	var st UserStats

	err := s.db.QueryRowContext(ctx, statsSQL, userID).Scan(
		&st.TotalFiles, &st.TotalFolders, &st.TotalSize, &st.InactiveFiles,
	)
	if err != nil {
		return nil, fmt.Errorf("catalog: stats for user %d: %w", userID, err)
	}

	const accountsSQL = `SELECT COUNT(*) FROM storage_accounts WHERE user_id = ? AND active = 1`

	if err := s.db.QueryRowContext(ctx, accountsSQL, userID).Scan(&st.AccountCount); err != nil {
		return nil, fmt.Errorf("catalog: account count for user %d: %w", userID, err)
	}

	return &st, nil
}
