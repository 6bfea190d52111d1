package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("catalog: not found")

// Account queries.
const (
	sqlAccountColumns = `id, user_id, provider, mode, account_email, account_name,
		credentials, token_expiry, active, last_sync,
		storage_used, storage_limit, created_at, updated_at`

	sqlGetAccount = `SELECT ` + sqlAccountColumns + ` FROM storage_accounts WHERE id = ?`

	sqlInsertAccount = `INSERT INTO storage_accounts
		(user_id, provider, mode, account_email, account_name,
		 credentials, token_expiry, active, last_sync,
		 storage_used, storage_limit, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	sqlListAccounts = `SELECT ` + sqlAccountColumns +
		` FROM storage_accounts WHERE user_id = ? ORDER BY provider, account_email`

	sqlListActiveAccounts = `SELECT ` + sqlAccountColumns +
		` FROM storage_accounts WHERE active = 1 ORDER BY id`

	// Credential rotation updates the sealed blob and expiry in one statement,
	// so a crash between refresh and retry never leaves a half-rotated pair.
	sqlUpdateAccountCreds = `UPDATE storage_accounts
		SET credentials = ?, token_expiry = ?, updated_at = ?
		WHERE id = ?`

	sqlUpdateAccountQuota = `UPDATE storage_accounts
		SET storage_used = ?, storage_limit = ?, updated_at = ?
		WHERE id = ?`

	sqlTouchLastSync = `UPDATE storage_accounts
		SET last_sync = ?, updated_at = ?
		WHERE id = ?`

	sqlDeactivateAccount = `UPDATE storage_accounts
		SET active = 0, updated_at = ?
		WHERE id = ?`

	sqlDeleteAccount = `DELETE FROM storage_accounts WHERE id = ?`
)

func (s *Store) prepareAccountStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.accountStmts.get, sqlGetAccount, "getAccount"},
		{&s.accountStmts.insert, sqlInsertAccount, "insertAccount"},
		{&s.accountStmts.list, sqlListAccounts, "listAccounts"},
		{&s.accountStmts.listActive, sqlListActiveAccounts, "listActiveAccounts"},
		{&s.accountStmts.updateCreds, sqlUpdateAccountCreds, "updateAccountCreds"},
		{&s.accountStmts.updateQuota, sqlUpdateAccountQuota, "updateAccountQuota"},
		{&s.accountStmts.touchSync, sqlTouchLastSync, "touchLastSync"},
		{&s.accountStmts.deactivate, sqlDeactivateAccount, "deactivateAccount"},
		{&s.accountStmts.deleteByID, sqlDeleteAccount, "deleteAccount"},
	})
}

// scanAccount reads one storage_accounts row.
func scanAccount(row interface{ Scan(...any) error }) (*StorageAccount, error) {
	var a StorageAccount

	err := row.Scan(
		&a.ID, &a.UserID, &a.Provider, &a.Mode, &a.AccountEmail, &a.AccountName,
		&a.Credentials, &a.TokenExpiry, &a.Active, &a.LastSync,
		&a.StorageUsed, &a.StorageLimit, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	return &a, nil
}

// GetAccount returns the account with the given id, or ErrNotFound.
func (s *Store) GetAccount(ctx context.Context, id int64) (*StorageAccount, error) {
	a, err := scanAccount(s.accountStmts.get.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("catalog: account %d: %w", id, ErrNotFound)
	}

	if err != nil {
		return nil, fmt.Errorf("catalog: get account %d: %w", id, err)
	}

	return a, nil
}

// CreateAccount inserts a new storage account and sets its ID.
// The unique partial index on (user, provider, email, mode) rejects a second
// active account for the same identity.
func (s *Store) CreateAccount(ctx context.Context, a *StorageAccount) error {
	now := NowNano()
	a.CreatedAt = now
	a.UpdatedAt = now
	a.Active = true

	res, err := s.accountStmts.insert.ExecContext(ctx,
		a.UserID, a.Provider, a.Mode, a.AccountEmail, a.AccountName,
		a.Credentials, a.TokenExpiry, a.Active, a.LastSync,
		a.StorageUsed, a.StorageLimit, a.CreatedAt, a.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("catalog: create account: %w", err)
	}

	a.ID, err = res.LastInsertId()
	if err != nil {
		return fmt.Errorf("catalog: create account id: %w", err)
	}

	return nil
}

// ListAccounts returns all storage accounts for a user.
func (s *Store) ListAccounts(ctx context.Context, userID int64) ([]*StorageAccount, error) {
	rows, err := s.accountStmts.list.QueryContext(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("catalog: list accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// ListActiveAccounts returns every active account across all users.
// The daemon uses this to schedule sync cycles.
func (s *Store) ListActiveAccounts(ctx context.Context) ([]*StorageAccount, error) {
	rows, err := s.accountStmts.listActive.QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("catalog: list active accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func collectAccounts(rows *sql.Rows) ([]*StorageAccount, error) {
	var accounts []*StorageAccount

	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("catalog: scan account: %w", err)
		}

		accounts = append(accounts, a)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate accounts: %w", err)
	}

	return accounts, nil
}

// UpdateAccountCredentials persists a rotated sealed credential blob and its
// new expiry atomically with the account record.
func (s *Store) UpdateAccountCredentials(ctx context.Context, id int64, sealed []byte, expiry *int64) error {
	if _, err := s.accountStmts.updateCreds.ExecContext(ctx, sealed, expiry, NowNano(), id); err != nil {
		return fmt.Errorf("catalog: update credentials for account %d: %w", id, err)
	}

	return nil
}

// UpdateAccountQuota stores refreshed storage usage figures.
func (s *Store) UpdateAccountQuota(ctx context.Context, id, used, limit int64) error {
	if _, err := s.accountStmts.updateQuota.ExecContext(ctx, used, limit, NowNano(), id); err != nil {
		return fmt.Errorf("catalog: update quota for account %d: %w", id, err)
	}

	return nil
}

// TouchLastSync records the completion time of a sync.
func (s *Store) TouchLastSync(ctx context.Context, id, when int64) error {
	if _, err := s.accountStmts.touchSync.ExecContext(ctx, when, NowNano(), id); err != nil {
		return fmt.Errorf("catalog: touch last sync for account %d: %w", id, err)
	}

	return nil
}

// DeactivateAccount soft-disables an account without touching its records.
func (s *Store) DeactivateAccount(ctx context.Context, id int64) error {
	if _, err := s.accountStmts.deactivate.ExecContext(ctx, NowNano(), id); err != nil {
		return fmt.Errorf("catalog: deactivate account %d: %w", id, err)
	}

	return nil
}

// DeleteAccount removes an account. File records cascade via foreign key.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	if _, err := s.accountStmts.deleteByID.ExecContext(ctx, id); err != nil {
		return fmt.Errorf("catalog: delete account %d: %w", id, err)
	}

	return nil
}
