package provider

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		code int
		want error
	}{
		{"ok", http.StatusOK, nil},
		{"created", http.StatusCreated, nil},
		{"no content", http.StatusNoContent, nil},
		{"unauthorized", http.StatusUnauthorized, ErrAuthExpired},
		{"forbidden", http.StatusForbidden, ErrAuthTerminal},
		{"not found", http.StatusNotFound, ErrNotFound},
		{"gone", http.StatusGone, ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, ErrUnavailable},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"bad gateway", http.StatusBadGateway, ErrUnavailable},
		{"bad request", http.StatusBadRequest, ErrMalformed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := ClassifyStatus(tt.code)
			if tt.want == nil {
				assert.NoError(t, got)
			} else {
				assert.ErrorIs(t, got, tt.want)
			}
		})
	}
}

func TestCallError_Unwrap(t *testing.T) {
	t.Parallel()

	err := &CallError{
		Provider:   "google_drive",
		StatusCode: http.StatusUnauthorized,
		Message:    "token expired",
		Err:        ErrAuthExpired,
	}

	var wrapped error = fmt.Errorf("listing files: %w", err)

	require.ErrorIs(t, wrapped, ErrAuthExpired)

	var callErr *CallError
	require.ErrorAs(t, wrapped, &callErr)
	assert.Equal(t, "google_drive", callErr.Provider)
	assert.Equal(t, http.StatusUnauthorized, callErr.StatusCode)
}

func TestCredentials_Roundtrip(t *testing.T) {
	t.Parallel()

	creds := Credentials{AccessToken: "a", RefreshToken: "r"}

	b, err := creds.Encode()
	require.NoError(t, err)

	decoded, err := DecodeCredentials(b)
	require.NoError(t, err)
	assert.Equal(t, creds, decoded)
}

func TestDecodeCredentials_Garbage(t *testing.T) {
	t.Parallel()

	_, err := DecodeCredentials([]byte("not json"))
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrMalformed), "codec errors are not provider call errors")
}
