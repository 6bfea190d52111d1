// Package catalog implements the local metadata catalog backing the sync
// engine: storage accounts, file records, and sync run bookkeeping, persisted
// in an embedded SQLite database with WAL mode.
package catalog

import (
	"strings"
	"time"
)

// AccessMode controls what a storage account connection is allowed to do.
type AccessMode string

// Access modes as stored in the storage_accounts.mode column.
const (
	// ModeMetadata grants listing and quota reads only. Delete and upload
	// are rejected before any provider call is made.
	ModeMetadata AccessMode = "metadata"
	// ModeFullAccess additionally grants delete and upload.
	ModeFullAccess AccessMode = "full_access"
)

// Valid reports whether m is a known access mode.
func (m AccessMode) Valid() bool {
	return m == ModeMetadata || m == ModeFullAccess
}

// StorageAccount is one authenticated connection between a user and one
// provider account in a given access mode. At most one active account may
// exist per (user, provider, email, mode) tuple — enforced by a unique index.
type StorageAccount struct {
	ID           int64
	UserID       int64
	Provider     string // registry key, e.g. "google_drive"
	Mode         AccessMode
	AccountEmail string
	AccountName  string

	// Credentials holds the sealed (encrypted at rest) access/refresh token
	// pair. The catalog never sees plaintext tokens.
	Credentials []byte
	TokenExpiry *int64 // Unix nanoseconds, nil when the provider gave no expiry

	Active   bool
	LastSync *int64 // Unix nanoseconds of last completed sync

	// Quota bookkeeping, refreshed after each sync. Used falls back to the
	// sum of active non-folder file sizes when the provider quota call fails.
	StorageUsed  int64
	StorageLimit int64

	CreatedAt int64
	UpdatedAt int64
}

// FileRecord is one observed remote file. Identity is the
// (AccountID, ProviderFileID) pair; reconciliation never deletes a record,
// it only flips Active when the file vanishes from a complete remote listing.
type FileRecord struct {
	ID             int64
	UserID         int64
	AccountID      int64
	ProviderFileID string

	Name      string
	Path      string
	Extension string // lowercase, no dot
	Size      *int64 // nil when the provider reports no size
	MimeType  string
	IsFolder  bool

	// MIME-derived classification flags.
	IsImage    bool
	IsVideo    bool
	IsDocument bool

	// Provider timestamps (Unix nanoseconds, nil when unreported).
	CreatedAtSource  *int64
	ModifiedAtSource *int64

	PreviewLink  string
	DownloadLink string
	WebViewLink  string

	// ContentHash is set only when the provider supplies a reliable digest
	// (MD5/SHA). SizeHash is the md5(lower(name)_size_mime) fallback key and
	// is recomputed whenever name and size are known.
	ContentHash string
	SizeHash    string

	Active bool

	CreatedAt int64
	UpdatedAt int64
}

// CountsInQuota reports whether this record contributes to storage usage
// and duplicate detection. Folders exist only to resolve paths.
func (f *FileRecord) CountsInQuota() bool {
	return !f.IsFolder && f.Active
}

// RunStatus is the lifecycle state of a SyncRun.
type RunStatus string

// Run statuses as stored in the sync_runs.status column.
const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// SyncRun is one execution of reconciliation for one storage account.
// Rows are append-only: created at run start, finalized exactly once
// (completed or failed), never mutated afterwards.
type SyncRun struct {
	ID        string // UUID
	AccountID int64
	UserID    int64

	StartedAt   int64
	CompletedAt *int64

	FilesProcessed   int
	FilesAdded       int
	FilesUpdated     int
	FilesDeactivated int

	Status      RunStatus
	ErrorDetail string
}

// UserStats aggregates catalog totals for one user, backing the stats command.
type UserStats struct {
	TotalFiles    int64
	TotalFolders  int64
	TotalSize     int64
	AccountCount  int64
	InactiveFiles int64
}

// Document MIME types beyond the image/ and video/ prefixes.
var documentMimeTypes = map[string]bool{
	"application/pdf":    true,
	"application/msword": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
	"text/csv":   true,
}

// Classify sets the MIME-derived type flags from the record's MimeType.
func (f *FileRecord) Classify() {
	f.IsImage = strings.HasPrefix(f.MimeType, "image/")
	f.IsVideo = strings.HasPrefix(f.MimeType, "video/")
	f.IsDocument = documentMimeTypes[f.MimeType]
}

// FileExtension extracts the lowercase extension (no dot) from a file name.
// Returns "" for names without one.
func FileExtension(name string) string {
	idx := strings.LastIndexByte(name, '.')
	if idx < 0 || idx == len(name)-1 {
		return ""
	}

	return strings.ToLower(name[idx+1:])
}

// NowNano returns the current time as Unix nanoseconds. All catalog
// timestamps use int64 Unix nanoseconds; conversion to time.Time happens
// at display boundaries only.
func NowNano() int64 {
	return time.Now().UnixNano()
}

// Int64Ptr returns a pointer to v. Used for nullable columns.
func Int64Ptr(v int64) *int64 {
	return &v
}
