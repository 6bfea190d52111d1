package sync

import (
	"crypto/md5" //nolint:gosec // similarity fingerprint, not a security boundary
	"encoding/hex"
	"fmt"
	"strings"
)

// ComputeSizeHash builds the fallback similarity fingerprint used when a
// provider supplies no content digest: md5 over the lowercased name, the
// size, and the MIME type joined with underscores. Files missing a name or
// a size get no fingerprint, so they can never group on it.
func ComputeSizeHash(name string, size *int64, mimeType string) string {
	if name == "" || size == nil {
		return ""
	}

	input := fmt.Sprintf("%s_%d_%s", strings.ToLower(name), *size, mimeType)
	sum := md5.Sum([]byte(input)) //nolint:gosec

	return hex.EncodeToString(sum[:])
}
