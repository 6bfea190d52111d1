package catalog

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s, err := Open(":memory:", logger)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })

	return s
}

func seedAccount(t *testing.T, s *Store, userID int64, provider string, mode AccessMode) *StorageAccount {
	t.Helper()

	a := &StorageAccount{
		UserID:       userID,
		Provider:     provider,
		Mode:         mode,
		AccountEmail: "user@example.com",
		Credentials:  []byte("sealed"),
	}
	require.NoError(t, s.CreateAccount(context.Background(), a))

	return a
}

func fileRecord(userID, accountID int64, pfid, name string, size int64) *FileRecord {
	now := NowNano()

	f := &FileRecord{
		UserID:         userID,
		AccountID:      accountID,
		ProviderFileID: pfid,
		Name:           name,
		Path:           "/" + name,
		Extension:      FileExtension(name),
		Size:           Int64Ptr(size),
		MimeType:       "application/octet-stream",
		Active:         true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	return f
}

func TestOpen_EmptyCatalog(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	st, err := s.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Zero(t, st.TotalFiles)
	assert.Zero(t, st.TotalFolders)
	assert.Zero(t, st.TotalSize)
	assert.Zero(t, st.AccountCount)
	assert.Zero(t, st.InactiveFiles)
}

func TestEnsureUser_Idempotent(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	first, err := s.EnsureUser(ctx, "local", "Local User")
	require.NoError(t, err)

	second, err := s.EnsureUser(ctx, "local", "Local User")
	require.NoError(t, err)
	assert.Equal(t, first, second)

	other, err := s.EnsureUser(ctx, "other", "Other")
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestAccountRoundtrip(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	require.NotZero(t, a.ID)
	assert.True(t, a.Active)

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, "google_drive", got.Provider)
	assert.Equal(t, ModeFullAccess, got.Mode)
	assert.Equal(t, []byte("sealed"), got.Credentials)
	assert.Nil(t, got.TokenExpiry)
	assert.Nil(t, got.LastSync)
}

func TestGetAccount_NotFound(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	_, err := s.GetAccount(context.Background(), 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestCreateAccount_RejectsDuplicateActiveIdentity(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	first := seedAccount(t, s, userID, "dropbox", ModeFullAccess)

	dup := &StorageAccount{
		UserID:       userID,
		Provider:     "dropbox",
		Mode:         ModeFullAccess,
		AccountEmail: "user@example.com",
		Credentials:  []byte("sealed"),
	}
	assert.Error(t, s.CreateAccount(ctx, dup))

	// Same identity in a different mode is a separate connection.
	meta := &StorageAccount{
		UserID:       userID,
		Provider:     "dropbox",
		Mode:         ModeMetadata,
		AccountEmail: "user@example.com",
		Credentials:  []byte("sealed"),
	}
	assert.NoError(t, s.CreateAccount(ctx, meta))

	// Deactivating frees the identity slot.
	require.NoError(t, s.DeactivateAccount(ctx, first.ID))
	assert.NoError(t, s.CreateAccount(ctx, dup))
}

func TestListActiveAccounts_ExcludesDeactivated(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	b := seedAccount(t, s, userID, "onedrive", ModeFullAccess)
	require.NoError(t, s.DeactivateAccount(ctx, a.ID))

	active, err := s.ListActiveAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, b.ID, active[0].ID)

	// ListAccounts still returns both.
	all, err := s.ListAccounts(ctx, userID)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestUpdateAccountFields(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	expiry := NowNano()
	require.NoError(t, s.UpdateAccountCredentials(ctx, a.ID, []byte("rotated"), &expiry))
	require.NoError(t, s.UpdateAccountQuota(ctx, a.ID, 1234, 5678))

	when := NowNano()
	require.NoError(t, s.TouchLastSync(ctx, a.ID, when))

	got, err := s.GetAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("rotated"), got.Credentials)
	require.NotNil(t, got.TokenExpiry)
	assert.Equal(t, expiry, *got.TokenExpiry)
	assert.Equal(t, int64(1234), got.StorageUsed)
	assert.Equal(t, int64(5678), got.StorageLimit)
	require.NotNil(t, got.LastSync)
	assert.Equal(t, when, *got.LastSync)
}

func TestDeleteAccount_CascadesFiles(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "a.txt", 10),
		fileRecord(userID, a.ID, "f2", "b.txt", 20),
	}))

	require.NoError(t, s.DeleteAccount(ctx, a.ID))

	_, err = s.GetAccount(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	files, err := s.ListFilesForAccount(ctx, a.ID)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestUpsertPage_InsertThenUpdate(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	rec := fileRecord(userID, a.ID, "f1", "report.pdf", 100)
	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{rec}))

	files, err := s.ListFilesForAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	originalCreated := files[0].CreatedAt

	// Same identity pair with new content updates in place.
	updated := fileRecord(userID, a.ID, "f1", "report-v2.pdf", 200)
	updated.CreatedAt = NowNano()
	updated.UpdatedAt = updated.CreatedAt
	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{updated}))

	files, err = s.ListFilesForAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "report-v2.pdf", files[0].Name)
	require.NotNil(t, files[0].Size)
	assert.Equal(t, int64(200), *files[0].Size)

	// The update path leaves created_at untouched.
	assert.Equal(t, originalCreated, files[0].CreatedAt)
}

func TestUpsertPage_EmptyIsNoop(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)

	assert.NoError(t, s.UpsertPage(context.Background(), nil))
}

func TestDeactivateFiles(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "a.txt", 10),
		fileRecord(userID, a.ID, "f2", "b.txt", 20),
	}))

	n, err := s.DeactivateFiles(ctx, a.ID, []string{"f1", "missing"}, NowNano())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// Already-inactive rows do not count again.
	n, err = s.DeactivateFiles(ctx, a.ID, []string{"f1"}, NowNano())
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = s.DeactivateFiles(ctx, a.ID, nil, NowNano())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestSumActiveSize(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	folder := fileRecord(userID, a.ID, "d1", "photos", 0)
	folder.IsFolder = true
	folder.Size = nil

	inactive := fileRecord(userID, a.ID, "f3", "old.txt", 1000)
	inactive.Active = false

	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "a.txt", 10),
		fileRecord(userID, a.ID, "f2", "b.txt", 20),
		folder,
		inactive,
	}))

	total, err := s.SumActiveSize(ctx, a.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), total)
}

func TestListActiveFilesForUser_ModeFilter(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	full := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	meta := seedAccount(t, s, userID, "dropbox", ModeMetadata)

	inactive := fileRecord(userID, full.ID, "f3", "gone.txt", 5)
	inactive.Active = false

	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, full.ID, "f1", "b.txt", 10),
		fileRecord(userID, meta.ID, "f2", "a.txt", 20),
		inactive,
	}))

	all, err := s.ListActiveFilesForUser(ctx, userID, "")
	require.NoError(t, err)
	require.Len(t, all, 2)

	// Ordered by name for deterministic grouping.
	assert.Equal(t, "a.txt", all[0].Name)
	assert.Equal(t, "b.txt", all[1].Name)

	fullOnly, err := s.ListActiveFilesForUser(ctx, userID, ModeFullAccess)
	require.NoError(t, err)
	require.Len(t, fullOnly, 1)
	assert.Equal(t, "b.txt", fullOnly[0].Name)
}

func TestListLargeFiles(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	folder := fileRecord(userID, a.ID, "d1", "big-folder", 9999)
	folder.IsFolder = true

	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "small.txt", 10),
		fileRecord(userID, a.ID, "f2", "medium.bin", 500),
		fileRecord(userID, a.ID, "f3", "large.iso", 5000),
		folder,
	}))

	files, err := s.ListLargeFiles(ctx, userID, 100, 10)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "large.iso", files[0].Name)
	assert.Equal(t, "medium.bin", files[1].Name)

	limited, err := s.ListLargeFiles(ctx, userID, 100, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, "large.iso", limited[0].Name)
}

func TestDeleteFile_HardDeletes(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "dup.jpg", 100),
	}))

	files, err := s.ListFilesForAccount(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, files, 1)

	require.NoError(t, s.DeleteFile(ctx, files[0].ID))

	_, err = s.GetFile(ctx, files[0].ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStats(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)
	b := seedAccount(t, s, userID, "dropbox", ModeMetadata)
	require.NoError(t, s.DeactivateAccount(ctx, b.ID))

	folder := fileRecord(userID, a.ID, "d1", "docs", 0)
	folder.IsFolder = true
	folder.Size = nil

	inactive := fileRecord(userID, a.ID, "f3", "old.txt", 1000)
	inactive.Active = false

	require.NoError(t, s.UpsertPage(ctx, []*FileRecord{
		fileRecord(userID, a.ID, "f1", "a.txt", 10),
		fileRecord(userID, a.ID, "f2", "b.txt", 20),
		folder,
		inactive,
	}))

	st, err := s.Stats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.TotalFiles)
	assert.Equal(t, int64(1), st.TotalFolders)
	assert.Equal(t, int64(30), st.TotalSize)
	assert.Equal(t, int64(1), st.InactiveFiles)
	assert.Equal(t, int64(1), st.AccountCount)
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	run, err := s.CreateRun(ctx, a.ID, userID)
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, RunRunning, run.Status)

	running, err := s.HasRunningRun(ctx, a.ID)
	require.NoError(t, err)
	assert.True(t, running)

	// A run cannot be finalized while still marked running.
	err = s.FinalizeRun(ctx, run)
	require.Error(t, err)

	run.Status = RunCompleted
	run.FilesProcessed = 5
	run.FilesAdded = 3
	require.NoError(t, s.FinalizeRun(ctx, run))
	require.NotNil(t, run.CompletedAt)

	running, err = s.HasRunningRun(ctx, a.ID)
	require.NoError(t, err)
	assert.False(t, running)

	// The second finalize hits zero rows.
	err = s.FinalizeRun(ctx, run)
	assert.ErrorIs(t, err, ErrAlreadyFinalized)
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	userID, err := s.EnsureUser(ctx, "local", "local")
	require.NoError(t, err)

	a := seedAccount(t, s, userID, "google_drive", ModeFullAccess)

	for i := 0; i < 3; i++ {
		run, err := s.CreateRun(ctx, a.ID, userID)
		require.NoError(t, err)

		run.Status = RunCompleted
		require.NoError(t, s.FinalizeRun(ctx, run))
	}

	runs, err := s.ListRuns(ctx, a.ID, 10)
	require.NoError(t, err)
	require.Len(t, runs, 3)

	// Newest first.
	for i := 1; i < len(runs); i++ {
		assert.GreaterOrEqual(t, runs[i-1].StartedAt, runs[i].StartedAt)
	}

	limited, err := s.ListRuns(ctx, a.ID, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestFileExtension(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		want string
	}{
		{"report.PDF", "pdf"},
		{"archive.tar.gz", "gz"},
		{"noext", ""},
		{"trailing.", ""},
		{".hidden", "hidden"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FileExtension(tt.name), tt.name)
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()

	tests := []struct {
		mime                    string
		isImage, isVideo, isDoc bool
	}{
		{"image/jpeg", true, false, false},
		{"video/mp4", false, true, false},
		{"application/pdf", false, false, true},
		{"text/csv", false, false, true},
		{"application/zip", false, false, false},
	}

	for _, tt := range tests {
		f := FileRecord{MimeType: tt.mime}
		f.Classify()
		assert.Equal(t, tt.isImage, f.IsImage, tt.mime)
		assert.Equal(t, tt.isVideo, f.IsVideo, tt.mime)
		assert.Equal(t, tt.isDoc, f.IsDocument, tt.mime)
	}
}
