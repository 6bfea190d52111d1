package provider

import (
	"errors"
	"fmt"
	"net/http"
)

// Sentinel errors for provider failure classification.
// Check with errors.Is(err, provider.ErrAuthExpired).
var (
	// ErrAuthExpired marks a 401-equivalent response. Recoverable via one
	// refresh-and-retry; the coordinator handles it.
	ErrAuthExpired = errors.New("provider: credentials expired")

	// ErrAuthTerminal marks an unrecoverable auth failure: refresh absent,
	// refresh rejected, or a second 401 after a successful refresh.
	// Surfaced to the user as "reconnect account".
	ErrAuthTerminal = errors.New("provider: authorization failed, account must be reconnected")

	// ErrUnavailable marks transient network or 5xx failures. The run fails
	// but committed pages stand; the next scheduled sync retries.
	ErrUnavailable = errors.New("provider: temporarily unavailable")

	// ErrMalformed marks a single record missing required fields. The record
	// is skipped and the page continues.
	ErrMalformed = errors.New("provider: malformed record")

	// ErrQuotaUnavailable marks a missing or failing quota endpoint.
	// Non-fatal; triggers local usage recomputation.
	ErrQuotaUnavailable = errors.New("provider: quota unavailable")

	// ErrMetadataMode rejects delete/upload on metadata-mode accounts.
	ErrMetadataMode = errors.New("provider: operation not allowed in metadata mode")

	// ErrNotFound marks a missing remote file.
	ErrNotFound = errors.New("provider: not found")
)

// CallError wraps a sentinel with the provider name, HTTP status, and the
// response body excerpt for debugging.
type CallError struct {
	Provider   string
	StatusCode int
	Message    string
	Err        error // sentinel, for errors.Is()
}

func (e *CallError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}

	return fmt.Sprintf("%s: %s", e.Provider, e.Message)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// ClassifyStatus maps an HTTP status code to a sentinel error.
// Returns nil for 2xx success codes.
func ClassifyStatus(code int) error {
	switch {
	case code >= http.StatusOK && code < http.StatusMultipleChoices:
		return nil
	case code == http.StatusUnauthorized:
		return ErrAuthExpired
	case code == http.StatusForbidden:
		return ErrAuthTerminal
	case code == http.StatusNotFound, code == http.StatusGone:
		return ErrNotFound
	case code == http.StatusTooManyRequests:
		return ErrUnavailable
	case code >= http.StatusInternalServerError:
		return ErrUnavailable
	default:
		return ErrMalformed
	}
}
