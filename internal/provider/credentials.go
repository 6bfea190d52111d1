package provider

import (
	"encoding/json"
	"fmt"
	"time"
)

// credentialBlob is the JSON shape of a credential pair before sealing.
// Expiry is stored as Unix nanoseconds; zero means no expiry.
type credentialBlob struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Expiry       int64  `json:"expiry,omitempty"`
}

// Encode serializes a credential pair for sealing.
func (c Credentials) Encode() ([]byte, error) {
	blob := credentialBlob{
		AccessToken:  c.AccessToken,
		RefreshToken: c.RefreshToken,
	}

	if !c.Expiry.IsZero() {
		blob.Expiry = c.Expiry.UnixNano()
	}

	b, err := json.Marshal(blob)
	if err != nil {
		return nil, fmt.Errorf("provider: encoding credentials: %w", err)
	}

	return b, nil
}

// DecodeCredentials deserializes a credential pair produced by Encode.
func DecodeCredentials(b []byte) (Credentials, error) {
	var blob credentialBlob

	if err := json.Unmarshal(b, &blob); err != nil {
		return Credentials{}, fmt.Errorf("provider: decoding credentials: %w", err)
	}

	creds := Credentials{
		AccessToken:  blob.AccessToken,
		RefreshToken: blob.RefreshToken,
	}

	if blob.Expiry != 0 {
		creds.Expiry = time.Unix(0, blob.Expiry)
	}

	return creds, nil
}
