package catalog

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store persists the catalog in an embedded SQLite database. All repeated
// queries run through prepared statements, grouped by domain.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	accountStmts accountStatements
	fileStmts    fileStatements
	runStmts     runStatements
}

// Statement groups to avoid a flat list of 20+ fields.
type accountStatements struct {
	get, insert, list, listActive, updateCreds, updateQuota, touchSync, deactivate, deleteByID *sql.Stmt
}

type fileStatements struct {
	get, upsert, listForAccount, listActiveForUser, sumActiveSize, deleteByID, largeFiles *sql.Stmt
}

type runStatements struct {
	insert, finalize, hasRunning, list *sql.Stmt
}

// Open creates a Store at dbPath, applying pragmas and migrations and
// preparing all repeated statements. Use ":memory:" for tests.
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening catalog database", "path", dbPath)

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("catalog: open sqlite: %w", err)
	}

	// SQLite allows one writer at a time, and a pool of connections to an
	// in-memory database would each see a separate empty database. Pin the
	// pool to a single connection.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareAllStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("catalog: prepare statements: %w", err)
	}

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("catalog: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", "pragma", p.desc)
	}

	return nil
}

// stmtDef maps a SQL string to the prepared statement pointer it populates.
type stmtDef struct {
	dest **sql.Stmt
	sql  string
	name string
}

// prepareAll prepares a batch of statements, returning on first error.
func prepareAll(ctx context.Context, db *sql.DB, defs []stmtDef) error {
	for i := range defs {
		stmt, err := db.PrepareContext(ctx, defs[i].sql)
		if err != nil {
			return fmt.Errorf("prepare %s: %w", defs[i].name, err)
		}

		*defs[i].dest = stmt
	}

	return nil
}

func (s *Store) prepareAllStatements(ctx context.Context) error {
	if err := s.prepareAccountStmts(ctx); err != nil {
		return err
	}

	if err := s.prepareFileStmts(ctx); err != nil {
		return err
	}

	return s.prepareRunStmts(ctx)
}

// beginTx starts a write transaction. Page upserts and the deactivation pass
// each run in their own transaction — never shared, so a mid-listing failure
// leaves committed pages intact.
func (s *Store) beginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("catalog: begin tx: %w", err)
	}

	return tx, nil
}

// Close releases all prepared statements and closes the database.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.accountStmts.get, s.accountStmts.insert, s.accountStmts.list,
		s.accountStmts.listActive, s.accountStmts.updateCreds,
		s.accountStmts.updateQuota, s.accountStmts.touchSync,
		s.accountStmts.deactivate, s.accountStmts.deleteByID,
		s.fileStmts.get, s.fileStmts.upsert, s.fileStmts.listForAccount,
		s.fileStmts.listActiveForUser, s.fileStmts.sumActiveSize,
		s.fileStmts.deleteByID, s.fileStmts.largeFiles,
		s.runStmts.insert, s.runStmts.finalize, s.runStmts.hasRunning,
		s.runStmts.list,
	}

	for _, st := range stmts {
		if st != nil {
			st.Close()
		}
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("catalog: close: %w", err)
	}

	return nil
}
