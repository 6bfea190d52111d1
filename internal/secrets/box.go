// Package secrets seals credential blobs for storage at rest using age's
// scrypt-based passphrase encryption. The catalog only ever sees sealed
// bytes; plaintext tokens exist in memory alone.
package secrets

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"filippo.io/age"
)

// ErrNoPassphrase is returned when constructing a Box without key material.
var ErrNoPassphrase = errors.New("secrets: passphrase must not be empty")

// Box encrypts and decrypts small blobs with a single passphrase.
type Box struct {
	recipient *age.ScryptRecipient
	identity  *age.ScryptIdentity
}

// NewBox creates a Box from a passphrase.
func NewBox(passphrase string) (*Box, error) {
	if passphrase == "" {
		return nil, ErrNoPassphrase
	}

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating recipient: %w", err)
	}

	identity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating identity: %w", err)
	}

	return &Box{recipient: recipient, identity: identity}, nil
}

// Seal encrypts plaintext for storage at rest.
func (b *Box) Seal(plaintext []byte) ([]byte, error) {
	var buf bytes.Buffer

	w, err := age.Encrypt(&buf, b.recipient)
	if err != nil {
		return nil, fmt.Errorf("secrets: creating encrypted writer: %w", err)
	}

	if _, err := w.Write(plaintext); err != nil {
		return nil, fmt.Errorf("secrets: writing sealed payload: %w", err)
	}

	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("secrets: finalizing sealed payload: %w", err)
	}

	return buf.Bytes(), nil
}

// Open decrypts a sealed blob.
func (b *Box) Open(sealed []byte) ([]byte, error) {
	r, err := age.Decrypt(bytes.NewReader(sealed), b.identity)
	if err != nil {
		return nil, fmt.Errorf("secrets: opening sealed payload: %w", err)
	}

	plaintext, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("secrets: reading sealed payload: %w", err)
	}

	return plaintext, nil
}
