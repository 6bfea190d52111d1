package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrAlreadyFinalized is returned when finalizing a run that is no longer in
// the running state. A SyncRun is finalized exactly once.
var ErrAlreadyFinalized = errors.New("catalog: sync run already finalized")

// Sync run queries.
const (
	sqlRunColumns = `id, account_id, user_id, started_at, completed_at,
		files_processed, files_added, files_updated, files_deactivated,
		status, error_detail`

	sqlInsertRun = `INSERT INTO sync_runs
		(id, account_id, user_id, started_at, status)
		VALUES (?, ?, ?, ?, 'running')`

	// The status guard makes finalization idempotent-hostile on purpose:
	// a second finalize attempt affects zero rows and surfaces as an error.
	sqlFinalizeRun = `UPDATE sync_runs
		SET completed_at = ?, files_processed = ?, files_added = ?,
		    files_updated = ?, files_deactivated = ?, status = ?, error_detail = ?
		WHERE id = ? AND status = 'running'`

	sqlHasRunningRun = `SELECT COUNT(*) FROM sync_runs
		WHERE account_id = ? AND status = 'running'`

	sqlListRuns = `SELECT ` + sqlRunColumns + ` FROM sync_runs
		WHERE account_id = ? ORDER BY started_at DESC LIMIT ?`
)

func (s *Store) prepareRunStmts(ctx context.Context) error {
	return prepareAll(ctx, s.db, []stmtDef{
		{&s.runStmts.insert, sqlInsertRun, "insertRun"},
		{&s.runStmts.finalize, sqlFinalizeRun, "finalizeRun"},
		{&s.runStmts.hasRunning, sqlHasRunningRun, "hasRunningRun"},
		{&s.runStmts.list, sqlListRuns, "listRuns"},
	})
}

// CreateRun inserts a new running SyncRun and returns it.
func (s *Store) CreateRun(ctx context.Context, accountID, userID int64) (*SyncRun, error) {
	run := &SyncRun{
		ID:        uuid.NewString(),
		AccountID: accountID,
		UserID:    userID,
		StartedAt: NowNano(),
		Status:    RunRunning,
	}

	if _, err := s.runStmts.insert.ExecContext(ctx, run.ID, run.AccountID, run.UserID, run.StartedAt); err != nil {
		return nil, fmt.Errorf("catalog: create sync run: %w", err)
	}

	return run, nil
}

// FinalizeRun writes the terminal state of a running SyncRun. Returns
// ErrAlreadyFinalized when the run was already completed or failed.
func (s *Store) FinalizeRun(ctx context.Context, run *SyncRun) error {
	if run.Status == RunRunning {
		return fmt.Errorf("catalog: finalize run %s: status still running", run.ID)
	}

	completed := NowNano()
	run.CompletedAt = &completed

	res, err := s.runStmts.finalize.ExecContext(ctx,
		run.CompletedAt, run.FilesProcessed, run.FilesAdded,
		run.FilesUpdated, run.FilesDeactivated, run.Status, run.ErrorDetail,
		run.ID,
	)
	if err != nil {
		return fmt.Errorf("catalog: finalize run %s: %w", run.ID, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("catalog: finalize run %s: %w", run.ID, err)
	}

	if affected == 0 {
		return fmt.Errorf("catalog: run %s: %w", run.ID, ErrAlreadyFinalized)
	}

	return nil
}

// HasRunningRun reports whether the account has a sync run in the running
// state. The orchestrator checks this as the persistent half of the
// per-account lease.
func (s *Store) HasRunningRun(ctx context.Context, accountID int64) (bool, error) {
	var count int

	if err := s.runStmts.hasRunning.QueryRowContext(ctx, accountID).Scan(&count); err != nil {
		return false, fmt.Errorf("catalog: check running run for account %d: %w", accountID, err)
	}

	return count > 0, nil
}

// ListRuns returns the most recent sync runs for an account, newest first.
func (s *Store) ListRuns(ctx context.Context, accountID int64, limit int) ([]*SyncRun, error) {
	rows, err := s.runStmts.list.QueryContext(ctx, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("catalog: list runs for account %d: %w", accountID, err)
	}
	defer rows.Close()

	var runs []*SyncRun

	for rows.Next() {
		var r SyncRun

		scanErr := rows.Scan(
			&r.ID, &r.AccountID, &r.UserID, &r.StartedAt, &r.CompletedAt,
			&r.FilesProcessed, &r.FilesAdded, &r.FilesUpdated, &r.FilesDeactivated,
			&r.Status, &r.ErrorDetail,
		)
		if scanErr != nil {
			return nil, fmt.Errorf("catalog: scan run: %w", scanErr)
		}

		runs = append(runs, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("catalog: iterate runs: %w", err)
	}

	return runs, nil
}

// EnsureUser returns the id of the user with the given email, creating the
// row when absent. The CLI operates as a single local user by default.
func (s *Store) EnsureUser(ctx context.Context, email, name string) (int64, error) {
	var id int64

	err := s.db.QueryRowContext(ctx, `SELECT id FROM users WHERE email = ?`, email).Scan(&id)
	if err == nil {
		return id, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("catalog: lookup user %s: %w", email, err)
	}

	now := NowNano()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (email, name, created_at, updated_at) VALUES (?, ?, ?, ?)`,
		email, name, now, now,
	)
	if err != nil {
		return 0, fmt.Errorf("catalog: create user %s: %w", email, err)
	}

	id, err = res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("catalog: create user id: %w", err)
	}

	return id, nil
}
