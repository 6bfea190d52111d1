// Package provider defines the uniform boundary the sync core uses to talk
// to cloud storage services: the Gateway capability set, the error taxonomy
// for classifying provider failures, per-account rate limiting, and the
// refresh-and-retry-once token coordinator.
package provider

import (
	"context"
	"io"
	"time"
)

// FileDescriptor is one remote file as reported by a provider listing,
// normalized to a common shape. ProviderFileID is the stable external
// identity; everything else is best-effort per provider.
type FileDescriptor struct {
	ProviderFileID string
	Name           string
	Path           string
	Size           *int64 // nil when the provider reports no size
	MimeType       string
	IsFolder       bool
	CreatedAt      *time.Time
	ModifiedAt     *time.Time

	// ContentHash is set only when the provider supplies a reliable digest
	// (e.g. Drive md5Checksum, Dropbox content_hash). Empty otherwise.
	ContentHash string

	PreviewLink  string
	DownloadLink string
	WebViewLink  string
}

// Page is one page of a remote file listing. A nil Files slice means the
// provider returned no listing at all and must never be conflated with an
// empty listing — the reconciler skips the deactivation pass on nil.
type Page struct {
	Files         []FileDescriptor
	NextPageToken string
}

// Quota is a provider storage quota snapshot.
type Quota struct {
	Total int64
	Used  int64
}

// Credentials is a plaintext OAuth token pair. It only ever lives in memory;
// at rest it is sealed by the secrets package.
type Credentials struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time // zero when the provider gave no expiry
}

// CanRefresh reports whether a refresh credential is present.
func (c Credentials) CanRefresh() bool {
	return c.RefreshToken != ""
}

// Upload describes a file upload request.
type Upload struct {
	Name       string
	FolderPath string
	MimeType   string
	Content    io.Reader
	Size       int64
}

// Gateway is the per-provider capability set consumed by the sync core.
// Implementations live under internal/gateway; the core never imports them
// directly — it receives gateways from the Registry.
//
// Every method classifies failures with the package sentinels (ErrAuthExpired,
// ErrUnavailable, ...) so callers branch on errors.Is, never on provider
// status codes.
type Gateway interface {
	// Name returns the registry key, e.g. "google_drive".
	Name() string

	// ListFiles returns one page of the remote listing. Pass "" for the
	// first page; a response with NextPageToken == "" is the last page.
	ListFiles(ctx context.Context, pageToken string) (*Page, error)

	// GetQuota returns the provider quota snapshot. Providers without a
	// quota endpoint return ErrQuotaUnavailable, which triggers the local
	// fallback computation.
	GetQuota(ctx context.Context) (*Quota, error)

	// DeleteFile removes a remote file. Fails fast with ErrMetadataMode
	// before any provider call when the account mode is metadata.
	DeleteFile(ctx context.Context, providerFileID string) error

	// UploadFile creates a remote file. Same metadata-mode restriction.
	UploadFile(ctx context.Context, up *Upload) error

	// Refresh exchanges the refresh credential for a new token pair,
	// adopts it for subsequent calls, and returns it for persistence.
	// Returns ErrAuthTerminal when no refresh credential exists or the
	// provider rejects it.
	Refresh(ctx context.Context) (*Credentials, error)

	// CurrentCredentials returns the token pair the gateway is using now.
	CurrentCredentials() Credentials
}
